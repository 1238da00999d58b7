package app

import "fmt"

// Status is an application's position in the lifecycle state machine.
type Status int

const (
	StatusNotLoaded Status = iota
	StatusLoadingSourceCode
	StatusNotBootstrapped
	StatusBootstrapping
	StatusNotMounted
	StatusMounting
	StatusMounted
	StatusUnmounting
	StatusUnloading
	StatusLoadError
	StatusSkipBecauseBroken
)

var statusNames = [...]string{
	StatusNotLoaded:         "NOT_LOADED",
	StatusLoadingSourceCode: "LOADING_SOURCE_CODE",
	StatusNotBootstrapped:   "NOT_BOOTSTRAPPED",
	StatusBootstrapping:     "BOOTSTRAPPING",
	StatusNotMounted:        "NOT_MOUNTED",
	StatusMounting:          "MOUNTING",
	StatusMounted:           "MOUNTED",
	StatusUnmounting:        "UNMOUNTING",
	StatusUnloading:         "UNLOADING",
	StatusLoadError:         "LOAD_ERROR",
	StatusSkipBecauseBroken: "SKIP_BECAUSE_BROKEN",
}

// String returns the canonical upper-case name.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "UNKNOWN"
	}
	return statusNames[s]
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, ok := ParseStatus(string(text))
	if !ok {
		return fmt.Errorf("app: unknown status %q", text)
	}
	*s = parsed
	return nil
}

// ParseStatus is the inverse of String.
func ParseStatus(name string) (Status, bool) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), true
		}
	}
	return 0, false
}

// Transitional reports whether a transition function currently owns a
// record in this status.
func (s Status) Transitional() bool {
	switch s {
	case StatusLoadingSourceCode, StatusBootstrapping, StatusMounting, StatusUnmounting, StatusUnloading:
		return true
	}
	return false
}

// edges lists every permitted status change. SKIP_BECAUSE_BROKEN is absorbing.
var edges = map[Status][]Status{
	StatusNotLoaded:         {StatusLoadingSourceCode},
	StatusLoadError:         {StatusLoadingSourceCode, StatusUnloading},
	StatusLoadingSourceCode: {StatusNotBootstrapped, StatusLoadError, StatusSkipBecauseBroken},
	StatusNotBootstrapped:   {StatusBootstrapping, StatusUnloading},
	StatusBootstrapping:     {StatusNotMounted, StatusSkipBecauseBroken},
	StatusNotMounted:        {StatusMounting, StatusUnloading},
	StatusMounting:          {StatusMounted, StatusSkipBecauseBroken},
	StatusMounted:           {StatusUnmounting},
	StatusUnmounting:        {StatusNotMounted, StatusSkipBecauseBroken},
	StatusUnloading:         {StatusNotLoaded, StatusSkipBecauseBroken},
}

// CanTransition reports whether from -> to is a permitted edge.
func CanTransition(from, to Status) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Kind distinguishes top-level applications from parcels.
type Kind int

const (
	KindApplication Kind = iota
	KindParcel
)

func (k Kind) String() string {
	if k == KindParcel {
		return "parcel"
	}
	return "application"
}
