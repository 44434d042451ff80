// Package eventbus provides the publish/subscribe channel for basket- and
// step-lifecycle notifications. Publication is non-blocking and best-effort:
// events flow through a bounded outbound queue drained by a dedicated
// goroutine, and a full queue drops the oldest pending event rather than
// blocking the engine. Zero subscribers for a kind is a normal condition.
package eventbus
