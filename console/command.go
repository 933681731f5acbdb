// Package console implements the line protocol used to drive the engine from
// a terminal or a pipe.
//
//	load <deck> <path>     play <deck>      stop <deck>
//	seek <deck> <seconds>  pos <deck> <0-1> fwd <deck>   rew <deck>
//	gain|speed|wet|room|damp|dry|freeze <deck> <value>
//	volume <0-1>  pause  resume  status  help  quit
package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"djmix/deck"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("bad arguments")
	// ErrQuit is returned by Exec for the quit command.
	ErrQuit = errors.New("quit")
)

// Verb names a console command.
type Verb string

const (
	VerbLoad   Verb = "load"
	VerbEject  Verb = "eject"
	VerbPlay   Verb = "play"
	VerbStop   Verb = "stop"
	VerbSeek   Verb = "seek"
	VerbPos    Verb = "pos"
	VerbFwd    Verb = "fwd"
	VerbRew    Verb = "rew"
	VerbSet    Verb = "set"
	VerbVolume Verb = "volume"
	VerbPause  Verb = "pause"
	VerbResume Verb = "resume"
	VerbStatus Verb = "status"
	VerbHelp   Verb = "help"
	VerbQuit   Verb = "quit"
)

// Command is a parsed console line. Only the fields the verb uses are set.
type Command struct {
	Verb  Verb
	Deck  int
	Path  string
	Param deck.Param
	Value float64
}

type argKind int

const (
	noArgs argKind = iota
	deckOnly
	deckPath
	deckValue
	valueOnly
)

var verbs = map[Verb]argKind{
	VerbLoad:   deckPath,
	VerbEject:  deckOnly,
	VerbPlay:   deckOnly,
	VerbStop:   deckOnly,
	VerbSeek:   deckValue,
	VerbPos:    deckValue,
	VerbFwd:    deckOnly,
	VerbRew:    deckOnly,
	VerbVolume: valueOnly,
	VerbPause:  noArgs,
	VerbResume: noArgs,
	VerbStatus: noArgs,
	VerbHelp:   noArgs,
	VerbQuit:   noArgs,
}

// Parse reads one command line. Parameter names (gain, speed, ...) are verbs
// of their own and parse to VerbSet.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrUsage)
	}

	name := strings.ToLower(fields[0])
	args := fields[1:]

	cmd := Command{Verb: Verb(name)}
	kind, ok := verbs[cmd.Verb]
	if !ok {
		p, err := deck.ParseParam(name)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
		}
		cmd.Verb, cmd.Param, kind = VerbSet, p, deckValue
	}

	switch kind {
	case noArgs:
		if len(args) != 0 {
			return Command{}, usage(name, "takes no arguments")
		}
	case valueOnly:
		if len(args) != 1 {
			return Command{}, usage(name, "<value>")
		}
		v, err := parseValue(args[0])
		if err != nil {
			return Command{}, err
		}
		cmd.Value = v
	case deckOnly, deckValue, deckPath:
		if len(args) < 1 {
			return Command{}, usage(name, "<deck> ...")
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return Command{}, fmt.Errorf("%w: deck %q is not a number", ErrUsage, args[0])
		}
		cmd.Deck = id
		args = args[1:]

		switch kind {
		case deckOnly:
			if len(args) != 0 {
				return Command{}, usage(name, "<deck>")
			}
		case deckValue:
			if len(args) != 1 {
				return Command{}, usage(name, "<deck> <value>")
			}
			v, err := parseValue(args[0])
			if err != nil {
				return Command{}, err
			}
			cmd.Value = v
		case deckPath:
			if len(args) == 0 {
				return Command{}, usage(name, "<deck> <path>")
			}
			// Paths may contain spaces.
			cmd.Path = strings.Join(args, " ")
		}
	}

	return cmd, nil
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrUsage, s)
	}
	return v, nil
}

func usage(verb, args string) error {
	return fmt.Errorf("%w: %s %s", ErrUsage, verb, args)
}
