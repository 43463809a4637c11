// Package imaging converts camera and fixture images into bounded JPEG frames.
package imaging
