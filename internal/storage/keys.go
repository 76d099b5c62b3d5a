package storage

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ObjectKey derives the storage key for a document. Keys are tenant-prefixed
// so that cross-tenant access is impossible even with a leaked key list, and
// carry the original extension for content-type sniffing on download.
func ObjectKey(tenantID, documentID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("tenants/%s/docs/%s%s", tenantID, documentID, ext)
}

// SubmissionKey derives the storage key for an external portal submission.
// Submissions live under the portal prefix until the owning tenant accepts
// them into the main document tree.
func SubmissionKey(tenantID, portalID, fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	return fmt.Sprintf("tenants/%s/portals/%s/%s%s", tenantID, portalID, uuid.NewString(), ext)
}

// TenantPrefix returns the key prefix under which every object of a tenant
// lives.
func TenantPrefix(tenantID string) string {
	return fmt.Sprintf("tenants/%s/", tenantID)
}
