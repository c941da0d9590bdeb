// Package audit keeps a persistent trail of the activation and
// reconfiguration attempts sadpctl makes, in the audit_logs table of the
// inventory database.
//
// A Recorder is attached to a campaign as an outcome sink, so every device
// touched by provision or reconfigure leaves one entry. The status API
// serves the trail read-only at /api/v1/audit.
package audit
