package mcmcan

import "errors"

var (
	// ErrConfigurationInvariant reports hardware state that contradicts the
	// configuration the driver wrote; it is raised as a panic.
	ErrConfigurationInvariant = errors.New("mcmcan: configuration invariant violated")
	ErrSetupFailed            = errors.New("mcmcan: setup wait failed")
	ErrModuleClaimed          = errors.New("mcmcan: module already claimed")
	ErrNodeTaken              = errors.New("mcmcan: node already taken")
	ErrInvalidNode            = errors.New("mcmcan: invalid node id")
	ErrStateConsumed          = errors.New("mcmcan: node state already consumed")
)
