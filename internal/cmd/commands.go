package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/comalice/commando/internal/primitives"
)

type commandKind int

const (
	cmdVelocity commandKind = iota
	cmdStop
	cmdEmergencyStop
	cmdBump
	cmdState
	cmdHelp
)

// command is one parsed line of the run console.
type command struct {
	kind      commandKind
	direction primitives.Direction
	power     int
}

const consoleHelp = `commands:
  forward|backward|left|right [power]   request a velocity (power defaults to 50)
  stop                                  stop after queued requests
  estop                                 stop and zero the wheels
  bump                                  request a bump check
  state                                 print state and velocity
  help                                  print this help`

const defaultPower = 50

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	switch fields[0] {
	case "stop", "quit", "exit":
		return command{kind: cmdStop}, nil
	case "estop", "halt":
		return command{kind: cmdEmergencyStop}, nil
	case "bump", "check":
		return command{kind: cmdBump}, nil
	case "state", "status":
		return command{kind: cmdState}, nil
	case "help", "?":
		return command{kind: cmdHelp}, nil
	}

	dir, err := primitives.ParseDirection(fields[0])
	if err != nil {
		return command{}, fmt.Errorf("unknown command %q", fields[0])
	}
	c := command{kind: cmdVelocity, direction: dir, power: defaultPower}
	if len(fields) > 1 {
		// Negative values are passed through and rejected by the pilot.
		c.power, err = strconv.Atoi(fields[1])
		if err != nil {
			return command{}, fmt.Errorf("invalid power %q", fields[1])
		}
	}
	if len(fields) > 2 {
		return command{}, fmt.Errorf("too many arguments")
	}
	return c, nil
}
