package state

import (
	"slices"

	"glade-runner/server/internal/geometry"
)

// EntityID indexes an entity inside the world arena. Zero means "no entity".
type EntityID uint64

// Well-known tags.
const (
	TagPlayer = "player"
)

// Entity is a closed set of typed, optional components. Systems select the
// entities they care about by checking which component pointers are set.
type Entity struct {
	ID         EntityID `json:"-"`
	UUID       string   `json:"uuid,omitempty"`
	Type       string   `json:"type"`
	Name       string   `json:"name,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Persistent bool     `json:"persistent,omitempty"`

	Transform      *Transform      `json:"transform,omitempty"`
	LocalTransform *LocalTransform `json:"localTransform,omitempty"`
	Parent         *Parent         `json:"parent,omitempty"`
	Shape          *geometry.Shape `json:"shape,omitempty"`
	Collider       *Collider       `json:"collider,omitempty"`

	Detectable       *Detectable `json:"detectable,omitempty"`
	DamageDetectable *Detectable `json:"damageDetectable,omitempty"`
	PortalDetectable *Detectable `json:"portalDetectable,omitempty"`

	Detect       *Detect `json:"detect,omitempty"`
	DamageDetect *Detect `json:"damageDetect,omitempty"`
	PortalDetect *Detect `json:"portalDetect,omitempty"`

	Motion       *Motion             `json:"motion,omitempty"`
	SteerProfile *MotionSteerProfile `json:"steerProfile,omitempty"`

	SceneConfig   *SceneConfig   `json:"sceneConfig,omitempty"`
	GlobalManager *GlobalManager `json:"-"`
	Portal        *Portal        `json:"portal,omitempty"`
	Entry         *EntryPoint    `json:"entry,omitempty"`
	Sprite        *Sprite        `json:"sprite,omitempty"`
}

// HasTag reports whether the entity carries tag.
func (e *Entity) HasTag(tag string) bool {
	if e == nil || tag == "" {
		return false
	}
	return slices.Contains(e.Tags, tag)
}

// Position returns the transform position, or the zero vector.
func (e *Entity) Position() geometry.Vec2 {
	if e == nil || e.Transform == nil {
		return geometry.Vec2{}
	}
	return e.Transform.Position
}

// Transform is an entity's world position plus its previous-frame position.
type Transform struct {
	Position geometry.Vec2 `json:"position"`
	Previous geometry.Vec2 `json:"-"`
	Rotation float64       `json:"rotation,omitempty"`
}

// At builds a transform whose previous position equals its current one.
func At(x, y float64) *Transform {
	pos := geometry.V(x, y)
	return &Transform{Position: pos, Previous: pos}
}

// Moved returns the distance travelled since the previous frame.
func (t *Transform) Moved() float64 {
	if t == nil {
		return 0
	}
	return geometry.Distance(t.Position, t.Previous)
}

// SetPosition moves the transform without producing a sweep.
func (t *Transform) SetPosition(p geometry.Vec2) {
	t.Position = p
	t.Previous = p
}

// LocalTransform is an offset resolved against the Parent each tick.
type LocalTransform struct {
	Offset geometry.Vec2 `json:"offset"`
}

// Parent references the owning entity. Parent graphs are trees. Persisted
// data refers to the parent by UUID; the world resolves it to an ID.
type Parent struct {
	ID   EntityID `json:"-"`
	UUID string   `json:"uuid,omitempty"`
}

// Collider captures physics participation. Geometry lives in the Shape on the
// same entity.
type Collider struct {
	IsStatic       bool    `json:"isStatic,omitempty"`
	IsTrigger      bool    `json:"isTrigger,omitempty"`
	Layer          uint32  `json:"layer,omitempty"`
	Mask           uint32  `json:"mask,omitempty"`
	CCDEnabled     bool    `json:"ccdEnabled,omitempty"`
	CCDMinDistance float64 `json:"minDistance,omitempty"`
	CCDBuffer      float64 `json:"buffer,omitempty"`
}

// EffectiveLayer treats a zero layer as layer 1.
func (c *Collider) EffectiveLayer() uint32 {
	if c == nil || c.Layer == 0 {
		return 1
	}
	return c.Layer
}

// EffectiveMask treats a zero mask as "collide with everything".
func (c *Collider) EffectiveMask() uint32 {
	if c == nil || c.Mask == 0 {
		return ^uint32(0)
	}
	return c.Mask
}

// Accepts reports whether both colliders agree to interact.
func (c *Collider) Accepts(other *Collider) bool {
	return c.EffectiveMask()&other.EffectiveLayer() != 0 && other.EffectiveMask()&c.EffectiveLayer() != 0
}

// SceneConfig carries map metadata. At most one entity holds it.
type SceneConfig struct {
	MapID         string  `json:"id"`
	Width         float64 `json:"width"`
	Height        float64 `json:"height"`
	GroundColor   string  `json:"groundColor,omitempty"`
	Transitioning bool    `json:"-"`
}

// GlobalManager lives on the world singleton and survives every clear.
type GlobalManager struct {
	IsTransitioning bool   `json:"isTransitioning"`
	CurrentMapID    string `json:"currentMapId"`
}

// Portal sends a player that enters it to another map.
type Portal struct {
	TargetMap string `json:"targetMap"`
	EntryID   string `json:"entryId,omitempty"`
}

// EntryPoint names a spawn location a transition may snap the player to.
type EntryPoint struct {
	ID string `json:"id"`
}

// Sprite references a texture asset that must be preloaded.
type Sprite struct {
	Texture string `json:"texture"`
}
