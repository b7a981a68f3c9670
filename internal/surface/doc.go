// Package surface owns the domain vocabulary shared by the reconcile engine.
//
// Ownership boundary:
// - surface identity, category and alignment
// - descriptors and lifecycle events as delivered by an anchor provider
// - meshes and the representation the registry installs in the scene
// - category -> style token classification
//
// Everything here is plain data plus pure functions. No package-level state.
package surface
