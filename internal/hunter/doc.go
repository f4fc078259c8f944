// Package hunter holds the discovery engine: the shared session state, the
// event model streamed to observers, link extraction and candidate filtering,
// and the orchestrator that drives seeding and discovery rounds.
package hunter
