// Package version holds the tool version.
package version

// Version contains the bootstream-util version number.
var Version = "0.4"
