// Package logging configures the bridge's log/slog output.
//
// The process builds one Logger from the logging section of the config
// and hands scoped children to every component:
//
//	log := logging.New(cfg.Logging, version)
//	light := lightpack.NewLight(lightpack.Options{
//		Logger: log.With("entity_id", id, "protocol", lightpack.Protocol),
//	})
//
// JSON is the default format; "text" is easier to read on a terminal.
// Tokens and passwords from the config must never be logged.
package logging
