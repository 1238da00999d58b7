package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/spaship/pkg/app"
	"github.com/bft-labs/spaship/pkg/navigation"
	"github.com/bft-labs/spaship/pkg/pathmatch"
)

var (
	// ErrDuplicateApplication is returned when a name is registered twice.
	ErrDuplicateApplication = errors.New("registry: application already registered")

	// ErrApplicationNotFound is returned for names that are not registered.
	ErrApplicationNotFound = errors.New("registry: application not registered")

	// ErrInvalidRegistration is returned when registration arguments are unusable.
	ErrInvalidRegistration = errors.New("registry: invalid registration")
)

// DefaultLoadErrorCooldown is how long an application stays in LOAD_ERROR
// before a reroute tries to load it again.
const DefaultLoadErrorCooldown = 200 * time.Millisecond

// Registration describes an application to register.
type Registration struct {
	Name string

	// App is an app.LoadFunc, a func(context.Context, app.Props) (*app.Lifecycles, error),
	// or an *app.Lifecycles that is already available.
	App any

	// ActiveWhen is an app.ActivityFunc, a func(navigation.Location) bool,
	// a path pattern string, a []string of patterns, or a []any mixing both.
	ActiveWhen any

	// ExactMatch makes path patterns match only the full route.
	ExactMatch bool

	// CustomProps is nil, a map[string]any, or an app.PropsFunc.
	CustomProps any

	// LoadErrorCooldown overrides the registry default when positive.
	LoadErrorCooldown time.Duration
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRegistration, fmt.Sprintf(format, args...))
}

func (reg Registration) validate() (app.LoadFunc, app.ActivityFunc, error) {
	if reg.Name == "" {
		return nil, nil, invalid("name must be a non-empty string")
	}
	loader, err := sanitizeLoader(reg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("application %q: %w", reg.Name, err)
	}
	active, err := sanitizeActiveWhen(reg.ActiveWhen, reg.ExactMatch)
	if err != nil {
		return nil, nil, fmt.Errorf("application %q: %w", reg.Name, err)
	}
	if err := validateCustomProps(reg.CustomProps); err != nil {
		return nil, nil, fmt.Errorf("application %q: %w", reg.Name, err)
	}
	if reg.LoadErrorCooldown < 0 {
		return nil, nil, invalid("application %q: load error cooldown must not be negative", reg.Name)
	}
	return loader, active, nil
}

func sanitizeLoader(v any) (app.LoadFunc, error) {
	switch x := v.(type) {
	case app.LoadFunc:
		if x != nil {
			return x, nil
		}
	case func(context.Context, app.Props) (*app.Lifecycles, error):
		if x != nil {
			return x, nil
		}
	case *app.Lifecycles:
		if x != nil {
			return app.Static(x), nil
		}
	}
	return nil, invalid("app must be a loading function or lifecycles, got %T", v)
}

func sanitizeActiveWhen(v any, exact bool) (app.ActivityFunc, error) {
	switch x := v.(type) {
	case app.ActivityFunc:
		if x != nil {
			return x, nil
		}
	case func(navigation.Location) bool:
		if x != nil {
			return x, nil
		}
	case pathmatch.Predicate:
		if x != nil {
			return app.ActivityFunc(x), nil
		}
	case string:
		pred, err := pathmatch.Compile(x, exact)
		if err != nil {
			return nil, invalid("%v", err)
		}
		return app.ActivityFunc(pred), nil
	case []string:
		if len(x) == 0 {
			break
		}
		pred, err := pathmatch.CompileAll(x, exact)
		if err != nil {
			return nil, invalid("%v", err)
		}
		return app.ActivityFunc(pred), nil
	case []any:
		if len(x) == 0 {
			break
		}
		preds := make([]pathmatch.Predicate, 0, len(x))
		for i, item := range x {
			fn, err := sanitizeActiveWhen(item, exact)
			if err != nil {
				return nil, invalid("activeWhen[%d]: %v", i, err)
			}
			preds = append(preds, pathmatch.Predicate(fn))
		}
		return app.ActivityFunc(pathmatch.Any(preds...)), nil
	}
	return nil, invalid("activeWhen must be a predicate, a path pattern, or a list of them, got %T", v)
}

func validateCustomProps(v any) error {
	switch x := v.(type) {
	case nil, map[string]any:
		return nil
	case app.PropsFunc:
		if x != nil {
			return nil
		}
	case func(string, navigation.Location) any:
		if x != nil {
			return nil
		}
	}
	return invalid("customProps must be a map or a props function, got %T", v)
}
