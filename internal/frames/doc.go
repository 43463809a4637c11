// Package frames acquires camera frames into a single shared slot.
//
// A Device produces JPEG frames from a camera or a fixture directory. Source
// runs the acquisition loop and keeps only the newest frame; readers always
// receive a copy so a frame never changes underneath them.
package frames
