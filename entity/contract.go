// Package entity defines the entity contract (§4.2): the static
// capability an entity type exposes to the store, registry, and
// deletion engine — its store name, its key spec, and its declared
// sibling/child/free-relation edges, each tagged with a deletion
// behavior.
package entity

import "entitydb/keycodec"

// DeletionBehavior is one of Cascade, Error, or BreakLink (§3
// Glossary). It governs what the deletion engine does when it walks
// an edge out of the entity being removed.
type DeletionBehavior int

const (
	// Cascade follows the edge and deletes the far side too.
	Cascade DeletionBehavior = iota
	// Error aborts the whole delete if the far side exists.
	Error
	// BreakLink removes only the edge, leaving the far side alone.
	BreakLink
)

func (b DeletionBehavior) String() string {
	switch b {
	case Cascade:
		return "Cascade"
	case Error:
		return "Error"
	case BreakLink:
		return "BreakLink"
	default:
		return "Unknown"
	}
}

// SiblingEdge declares a 1:1 sibling store sharing this entity's
// KeySpec (§I2).
type SiblingEdge struct {
	StoreName string
	Behavior  DeletionBehavior
}

// ChildEdge declares a 1:N child store whose KeySpec is
// (thisKeySpec, u32) (§I3).
type ChildEdge struct {
	StoreName string
	Behavior  DeletionBehavior
}

// FreePartner declares a store this entity is allowed to form a named
// M:N free relation with (§4.5), and a behavior pair for it. Creating a
// relation takes both behaviors explicitly and neither checks this
// declaration nor reads these behaviors as defaults.
type FreePartner struct {
	StoreName      string
	SelfOnFarDelete DeletionBehavior // what happens to an edge from this store when the far side is deleted
	FarOnSelfDelete DeletionBehavior // what happens to an edge from the far store when this entity is deleted
}

// Descriptor is the static metadata for one registered entity store
// (§3 StoreDescriptor). It is the language-neutral stand-in for the
// "entity type implements a trait" polymorphism described in spec.md
// §9: a descriptor value, not a type parameter, carries the
// declarations the deletion engine needs.
type Descriptor struct {
	StoreName    string
	KeySpec      keycodec.Spec
	Siblings     []SiblingEdge
	Children     []ChildEdge
	FreePartners []FreePartner
}

// Sibling looks up the declared sibling edge to storeName, if any.
func (d Descriptor) Sibling(storeName string) (SiblingEdge, bool) {
	for _, s := range d.Siblings {
		if s.StoreName == storeName {
			return s, true
		}
	}
	return SiblingEdge{}, false
}

// Child looks up the declared child edge to storeName, if any.
func (d Descriptor) Child(storeName string) (ChildEdge, bool) {
	for _, c := range d.Children {
		if c.StoreName == storeName {
			return c, true
		}
	}
	return ChildEdge{}, false
}
