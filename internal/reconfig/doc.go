// Package reconfig changes the network parameters of discovered devices.
//
// Workflow.Reconfigure looks the device up in the registry, resolves the
// effective parameters (current values with any Overrides applied), sends
// them through the transport, and classifies a refusal from the vendor
// error code:
//
//	2018  DeviceLocked        LockMinutes says for how long
//	2024  PasswordIncorrect   RetriesRemaining says how many attempts are left
//	2019  DeviceNotActivated
//	else  Unclassified        ErrorCode keeps the raw code
//
// Refusals are Outcomes, not errors. When the address came from an
// ipalloc.Allocator the caller recycles it on failure.
package reconfig
