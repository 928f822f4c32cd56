package main

import "github.com/Neurotech-Hub/SOLAR-ControllerV3/host/cmd/solarctl/cmd"

func main() {
	cmd.Execute()
}
