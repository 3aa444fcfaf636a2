// Package device provides the device restart primitive.
package device
