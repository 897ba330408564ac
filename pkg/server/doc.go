// Package server exposes DOM managers over HTTP.
//
// Routes:
//
//	GET    /healthz                  liveness
//	GET    /metrics                  Prometheus metrics
//	GET    /managers                 ids of registered managers
//	POST   /managers                 create a manager (requires a factory)
//	DELETE /managers/{id}            close a manager
//	GET    /managers/{id}/snapshot   committed tree as JSON
//	GET    /managers/{id}/html       committed tree as positioned HTML
//	POST   /managers/{id}/snapshot   export the tree to the snapshot store
//	POST   /managers/{id}/size       set the root size and relayout
//	GET    /managers/{id}/render     websocket render bridge
//
// The render endpoint upgrades to a websocket, installs a render.Bridge as the
// manager's render layer and streams the current tree followed by every
// committed batch. Events, call results and root size changes sent by the
// native side are routed back into the manager.
package server
