// Package fault classifies pipeline failures into the four kinds the call path
// reacts to differently: transient backend errors, configuration errors,
// protocol violations and policy violations.
package fault

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindTransient     Kind = "transient_backend"
	KindConfiguration Kind = "configuration"
	KindProtocol      Kind = "protocol_violation"
	KindPolicy        Kind = "policy_violation"
)

type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Transient(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindTransient, Stage: stage, Err: err}
}

func Configuration(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Err: fmt.Errorf(format, args...)}
}

func Protocol(format string, args ...any) error {
	return &Error{Kind: KindProtocol, Err: fmt.Errorf(format, args...)}
}

// Policy reports that a prohibited backend was detected in use. It is the only
// kind allowed to escape a call session.
func Policy(backend string) error {
	return &Error{Kind: KindPolicy, Err: fmt.Errorf("prohibited backend detected in use: %s", backend)}
}

func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

func IsTransient(err error) bool     { return is(err, KindTransient) }
func IsConfiguration(err error) bool { return is(err, KindConfiguration) }
func IsProtocol(err error) bool      { return is(err, KindProtocol) }
func IsPolicy(err error) bool        { return is(err, KindPolicy) }

func is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
