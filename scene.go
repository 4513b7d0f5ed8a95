package thicket

import (
	"fmt"
	"os"

	"github.com/akmonengine/thicket/actor"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.uber.org/multierr"
)

const (
	ShapeBox  = "box"
	ShapeQuad = "quad"
)

// SceneActor describes one actor of a scene file
type SceneActor struct {
	Name  string `json:"name"`
	Shape string `json:"shape"`
	// Quads use X and Z only
	HalfExtents mgl64.Vec3 `json:"halfExtents"`
	// Grid cells per side of a quad
	Divisions int        `json:"divisions"`
	Position  mgl64.Vec3 `json:"position"`
	// Axis-angle rotation in degrees
	Rotation mgl64.Vec3 `json:"rotation"`
	Velocity mgl64.Vec3 `json:"velocity"`
	// Defaults to 1 for dynamic actors
	Mass        float64  `json:"mass"`
	Static      bool     `json:"static"`
	Trigger     bool     `json:"trigger"`
	Restitution *float64 `json:"restitution"`
}

type Scene struct {
	Name   string       `json:"name"`
	Actors []SceneActor `json:"actors"`
}

// LoadScene reads and validates a JSON5 scene file
func LoadScene(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scene")
	}

	return ParseScene(data)
}

func ParseScene(data []byte) (*Scene, error) {
	var scene Scene
	if err := json5.Unmarshal(data, &scene); err != nil {
		return nil, errors.Wrap(err, "parse scene")
	}
	if err := scene.Validate(); err != nil {
		return nil, err
	}

	return &scene, nil
}

// Validate reports every invalid actor description
func (s *Scene) Validate() error {
	var err error
	names := make(map[string]bool, len(s.Actors))
	for i, a := range s.Actors {
		if a.Name == "" {
			err = multierr.Append(err, errors.Errorf("actor %d has no name", i))
		} else if names[a.Name] {
			err = multierr.Append(err, errors.Errorf("actor %q is declared twice", a.Name))
		}
		names[a.Name] = true

		switch a.Shape {
		case ShapeBox:
			if a.HalfExtents.X() <= 0 || a.HalfExtents.Y() <= 0 || a.HalfExtents.Z() <= 0 {
				err = multierr.Append(err, errors.Errorf("box %q needs positive half extents, got %v", a.Name, a.HalfExtents))
			}
		case ShapeQuad:
			if a.HalfExtents.X() <= 0 || a.HalfExtents.Z() <= 0 {
				err = multierr.Append(err, errors.Errorf("quad %q needs positive X and Z half extents, got %v", a.Name, a.HalfExtents))
			}
		default:
			err = multierr.Append(err, errors.Errorf("actor %q has unknown shape %q", a.Name, a.Shape))
		}

		if a.Mass < 0 {
			err = multierr.Append(err, errors.Errorf("actor %q has negative mass %v", a.Name, a.Mass))
		}
		if r := a.Restitution; r != nil && (*r < 0 || *r > 1) {
			err = multierr.Append(err, errors.Errorf("actor %q has restitution %v outside [0,1]", a.Name, *r))
		}
	}

	return err
}

// Populate creates the actors of the scene and adds them to w
func (s *Scene) Populate(w *World) ([]*actor.Actor, error) {
	actors := make([]*actor.Actor, 0, len(s.Actors))
	for _, desc := range s.Actors {
		a := desc.newActor(w.Restitution)
		if _, err := w.AddActor(a); err != nil {
			return actors, errors.Wrapf(err, "scene %q", s.Name)
		}
		actors = append(actors, a)
	}

	return actors, nil
}

func (d SceneActor) newActor(restitution float64) *actor.Actor {
	var mesh *actor.TriangleMesh
	switch d.Shape {
	case ShapeQuad:
		mesh = actor.NewQuadMesh(d.HalfExtents.X(), d.HalfExtents.Z(), d.Divisions)
	default:
		mesh = actor.NewBoxMesh(d.HalfExtents)
	}

	mass := d.Mass
	if d.Static {
		mass = 0
	} else if mass == 0 {
		mass = 1
	}

	a := actor.NewActor(d.Name, actor.Transform{Position: d.Position}, mesh, mass)
	a.Rotate(mgl64.Vec3{
		mgl64.DegToRad(d.Rotation.X()),
		mgl64.DegToRad(d.Rotation.Y()),
		mgl64.DegToRad(d.Rotation.Z()),
	})
	a.Velocity = d.Velocity
	a.IsTrigger = d.Trigger
	a.Material.Restitution = restitution
	if d.Restitution != nil {
		a.Material.Restitution = *d.Restitution
	}
	a.ComputeAABB()

	return a
}

// DefaultScene is a static floor under a column of falling boxes
func DefaultScene(boxes int) *Scene {
	scene := &Scene{
		Name: "default",
		Actors: []SceneActor{{
			Name:        "floor",
			Shape:       ShapeQuad,
			HalfExtents: mgl64.Vec3{20, 0, 20},
			Divisions:   8,
			Static:      true,
		}},
	}

	for i := range boxes {
		scene.Actors = append(scene.Actors, SceneActor{
			Name:        fmt.Sprintf("box-%d", i),
			Shape:       ShapeBox,
			HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5},
			Position:    mgl64.Vec3{float64(i%3) * 0.3, 1 + 1.5*float64(i), 0},
			Rotation:    mgl64.Vec3{0, float64(15 * i), 0},
		})
	}

	return scene
}
