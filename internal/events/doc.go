// Package events publishes capture cycles and state changes to an MQTT broker
// so other home automation can react to what left the fridge.
package events
