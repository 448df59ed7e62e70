package world

import "errors"

var (
	ErrDuplicateSceneConfig = errors.New("world: scene config already present")
	ErrGlobalInArena        = errors.New("world: global manager must be installed with SetGlobal")
	ErrGlobalAlreadySet     = errors.New("world: global entity already set")
	ErrUnknownEntity        = errors.New("world: unknown entity")
	ErrProtectedEntity      = errors.New("world: entity is protected")
	ErrCyclicParent         = errors.New("world: parent link would create a cycle")
	ErrInvalidShape         = errors.New("world: invalid shape")
)
