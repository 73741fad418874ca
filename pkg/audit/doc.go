// Package audit records who changed organization, membership, team and
// permission state.
//
// Every write performed by the orgs service and the rbac handlers produces
// one Event. Events are stored in the audit_logs table by DBLogger; tests use
// Recorder. Permission checks are read-only and are not audited here; they
// are counted in Prometheus instead.
//
// # Usage
//
//	logger, err := audit.NewDBLogger(db)
//	if err != nil {
//		return err
//	}
//	ctx = audit.WithLogger(ctx, logger)
//
//	audit.FromContext(ctx).Log(ctx, &audit.Event{
//		OrganizationID: orgID,
//		Type:           audit.EventTypePermissionGranted,
//		ResourceType:   "property",
//		ResourceID:     propertyID,
//		Metadata:       map[string]interface{}{"team_id": teamID, "action": "update"},
//	})
//
// Actor and request ID default to the values carried in the context.
package audit
