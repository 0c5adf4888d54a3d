package collide

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

type systemFn any

// App runs its systems stage by stage once per frame. Systems get their arguments
// injected from the resources modules registered at build time.
type App struct {
	modules   []Module
	stages    []Stage
	systems   map[string][]systemFn
	resources map[reflect.Type]any
	order     []any

	frame int
	exit  bool
}

var (
	typeOfCommands = reflect.TypeOf(Commands{})
	typeOfContext  = reflect.TypeOf((*context.Context)(nil)).Elem()
	typeOfLogger   = reflect.TypeOf((*Logger)(nil)).Elem()
	typeOfError    = reflect.TypeOf((*error)(nil)).Elem()
)

func (app *App) Commands() *Commands {
	return &Commands{app: app}
}

// Frame is the number of frames completed so far.
func (app *App) Frame() int { return app.frame }

// Resource returns the resource stored under the type of ptr's element, e.g.
// app.Resource((*Time)(nil)).
func (app *App) Resource(ptr any) (any, bool) {
	t := reflect.TypeOf(ptr)
	if t == nil || t.Kind() != reflect.Pointer {
		return nil, false
	}
	r, ok := app.resources[t.Elem()]
	return r, ok
}

func (app *App) addResources(resources ...any) *App {
	for _, resource := range resources {
		resourceType := reflect.TypeOf(resource)
		if resourceType == nil || resourceType.Kind() != reflect.Pointer {
			panic(fmt.Sprintf("resource %T must be a pointer", resource))
		}
		if _, ok := app.resources[resourceType.Elem()]; ok {
			panic(fmt.Sprintf("%s is already in resources", resourceType))
		}
		app.resources[resourceType.Elem()] = resource
		app.order = append(app.order, resource)
	}
	return app
}

func systemName(system systemFn) string {
	name := runtime.FuncForPC(reflect.ValueOf(system).Pointer()).Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func (app *App) validateSystem(system systemFn) {
	systemType := reflect.TypeOf(system)
	if systemType == nil || systemType.Kind() != reflect.Func {
		panic(fmt.Sprintf("system %T is not a func", system))
	}
	switch systemType.NumOut() {
	case 0:
	case 1:
		if systemType.Out(0) != typeOfError {
			panic(fmt.Sprintf("system %s may only return error", systemName(system)))
		}
	default:
		panic(fmt.Sprintf("system %s returns too many values", systemName(system)))
	}
	for i := 0; i < systemType.NumIn(); i++ {
		argType := systemType.In(i)
		if argType == typeOfContext || argType == typeOfLogger {
			continue
		}
		if argType.Kind() != reflect.Pointer {
			panic(fmt.Sprintf("system %s: argument %d (%s) must be a pointer", systemName(system), i, argType))
		}
	}
}

func (app *App) callSystem(ctx context.Context, system systemFn) error {
	systemType := reflect.TypeOf(system)
	systemValue := reflect.ValueOf(system)

	args := make([]reflect.Value, systemType.NumIn())
	for i := 0; i < systemType.NumIn(); i++ {
		argType := systemType.In(i)
		switch {
		case argType == typeOfContext:
			args[i] = reflect.ValueOf(&ctx).Elem()
		case argType == typeOfLogger:
			logger := app.Logger()
			args[i] = reflect.ValueOf(&logger).Elem()
		case argType.Elem() == typeOfCommands:
			args[i] = reflect.ValueOf(&Commands{app: app})
		default:
			resource, ok := app.resources[argType.Elem()]
			if !ok {
				return fmt.Errorf("system %s: unresolved dependency %s", systemName(system), argType)
			}
			args[i] = reflect.ValueOf(resource)
		}
	}

	out := systemValue.Call(args)
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}

// Step runs every stage once. The first failing system ends the frame.
func (app *App) Step(ctx context.Context) error {
	for _, stage := range app.stages {
		for _, system := range app.systems[stage.Name] {
			if err := app.callSystem(ctx, system); err != nil {
				return fmt.Errorf("frame %d, %s: %w", app.frame, stage.Name, err)
			}
		}
	}
	app.frame++
	return nil
}

// Run steps frames times, or until a system calls Exit or ctx ends when frames <= 0.
// A cancelled ctx is a normal stop.
func (app *App) Run(ctx context.Context, frames int) error {
	app.exit = false
	for n := 0; frames <= 0 || n < frames; n++ {
		if ctx.Err() != nil {
			return nil
		}
		if err := app.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if app.exit {
			return nil
		}
	}
	return nil
}

// Release frees resources that hold outside state, newest first.
func (app *App) Release() {
	for i := len(app.order) - 1; i >= 0; i-- {
		if r, ok := app.order[i].(interface{ Release() }); ok {
			r.Release()
		}
	}
}
