// Package mqtt announces gateway activity to an MQTT broker.
//
// The announcer is optional and strictly publish-only: unlock outcomes,
// unlock progress, session lifecycle events, and the gateway's own
// online/offline status. Nothing subscribes, so the broker is an
// observation point rather than a control surface.
//
// Topic hierarchy:
//
//	dormlock/system/status           gateway online/offline (retained)
//	dormlock/unlock/{id}/progress    in-flight progress snapshots
//	dormlock/unlock/{id}/result      final outcome per attempt (retained)
//	dormlock/session/{kind}          login/logout events
//
// The client auto-reconnects with exponential backoff and carries a
// Last Will so subscribers can distinguish a crash from a graceful
// shutdown.
package mqtt
