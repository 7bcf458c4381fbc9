// Package enigma2 adapts an Enigma2 set-top box, reached through the
// OpenWebif JSON API, to the bridge's entity model.
//
// Client wraps the handful of OpenWebif endpoints the adapter needs
// (/api/about, /api/statusinfo, /api/getservices, /api/zap, /api/vol,
// /api/powerstate). Transport failures map to CannotConnect, HTTP error
// statuses and {"result": false} replies map to CommandFailed, and
// undecodable bodies map to Other.
//
// Player polls statusinfo, keeps the first bouquet as its source catalogue,
// and turns host commands into zap, volume and power-state calls.
package enigma2
