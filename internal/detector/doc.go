// Package detector turns a JPEG frame into food item labels, one per detected
// object instance. Two backends exist: a long-lived local command speaking
// JSON lines, and a hosted Roboflow-style HTTP model.
package detector
