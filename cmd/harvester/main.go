// Command harvester runs the disciplinary-ruling harvest pipeline.
package main

import "github.com/vgassen/tuchtrecht-harvester/cmd"

func main() {
	cmd.Execute()
}
