// The main package for the steparchiver executable.
package main

import (
	"github.com/JakeFAU/step-archiver/cmd"
)

func main() {
	cmd.Execute()
}
