// Package main drops a column of boxes on a floor and reports what the world sees.
package main

import (
	"fmt"
	"os"

	"github.com/akmonengine/thicket"
	"github.com/akmonengine/thicket/actor"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	flagConfig = "config"
	flagScene  = "scene"
	flagDebug  = "debug"
	flagBoxes  = "boxes"
	flagSteps  = "steps"
	flagDt     = "dt"
	flagEvery  = "every"
)

func main() {
	app := &cli.App{
		Name:  "simpleScene",
		Usage: "step a collision world built from a scene file",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:  flagConfig,
				Usage: "JSON5 world configuration",
			},
			&cli.PathFlag{
				Name:  flagScene,
				Usage: "JSON5 scene, the default floor and boxes when unset",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "log at debug level",
			},
			&cli.IntFlag{
				Name:  flagBoxes,
				Value: 5,
				Usage: "boxes in the default scene",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "step the world and log positions and collision events",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  flagSteps,
						Value: 240,
						Usage: "number of steps",
					},
					&cli.Float64Flag{
						Name:  flagDt,
						Value: 1.0 / 60.0,
						Usage: "step duration in seconds",
					},
					&cli.IntFlag{
						Name:  flagEvery,
						Value: 60,
						Usage: "log positions every n steps",
					},
				},
				Action: RunAction,
			},
			{
				Name:   "stats",
				Usage:  "build the scene and print the dynamic tree statistics",
				Action: StatsAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup builds the logger and the populated world from the global flags
func setup(c *cli.Context) (*thicket.World, []*actor.Actor, *zap.Logger, error) {
	cfg := thicket.DefaultConfig()
	if path := c.Path(flagConfig); path != "" {
		var err error
		if cfg, err = thicket.LoadConfig(path); err != nil {
			return nil, nil, nil, err
		}
	}
	if c.Bool(flagDebug) {
		cfg.LogLevel = "debug"
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "logger")
	}

	scene := thicket.DefaultScene(c.Int(flagBoxes))
	if path := c.Path(flagScene); path != "" {
		if scene, err = thicket.LoadScene(path); err != nil {
			return nil, nil, nil, err
		}
	}

	world := thicket.NewWorld(cfg, logger)
	actors, err := scene.Populate(world)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("scene loaded",
		zap.String("scene", scene.Name),
		zap.Int("actors", len(actors)),
		zap.Any("gravity", world.Gravity),
		zap.Int("substeps", world.Substeps),
		zap.Int("workers", world.Workers))

	return world, actors, logger, nil
}

func RunAction(c *cli.Context) error {
	world, actors, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	step := 0
	logEvent := func(event thicket.Event) {
		var a, b *actor.Actor
		switch e := event.(type) {
		case thicket.CollisionEnterEvent:
			a, b = e.ActorA, e.ActorB
		case thicket.CollisionExitEvent:
			a, b = e.ActorA, e.ActorB
		case thicket.TriggerEnterEvent:
			a, b = e.ActorA, e.ActorB
		case thicket.TriggerExitEvent:
			a, b = e.ActorA, e.ActorB
		default:
			return
		}
		logger.Info("event",
			zap.Int("step", step),
			zap.Uint8("type", uint8(event.Type())),
			zap.String("a", a.Name),
			zap.String("b", b.Name))
	}
	for _, t := range []thicket.EventType{thicket.COLLISION_ENTER, thicket.COLLISION_EXIT, thicket.TRIGGER_ENTER, thicket.TRIGGER_EXIT} {
		world.Events.Subscribe(t, logEvent)
	}

	steps, dt, every := c.Int(flagSteps), c.Float64(flagDt), max(1, c.Int(flagEvery))
	for step = 1; step <= steps; step++ {
		world.Step(dt)

		if step%every != 0 && step != steps {
			continue
		}
		for _, a := range actors {
			if a.IsStatic() {
				continue
			}
			logger.Info("actor",
				zap.Int("step", step),
				zap.String("name", a.Name),
				zap.Any("position", a.Transform.Position),
				zap.Any("velocity", a.Velocity))
		}
	}

	return nil
}

func StatsAction(c *cli.Context) error {
	world, _, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := world.Tree().Validate(); err != nil {
		return errors.Wrap(err, "tree")
	}

	s := world.Tree().Stats()
	fmt.Printf("leaves:          %d\n", s.Leaves)
	fmt.Printf("nodes:           %d (capacity %d)\n", s.Nodes, s.Capacity)
	fmt.Printf("height:          %d (max balance %d)\n", s.Height, world.Tree().MaxBalance())
	fmt.Printf("leaf depth:      %.2f ± %.2f\n", s.MeanLeafDepth, s.StdDevLeafDepth)
	fmt.Printf("root area:       %.2f\n", s.RootArea)
	fmt.Printf("area ratio:      %.2f\n", s.AreaRatio)
	fmt.Printf("overlapping:     %d pairs\n", len(world.BroadPhase()))

	return nil
}
