package dynamo

import "fmt"

const (
	// AttrPK is the partition key attribute of the table.
	AttrPK = "PK"
	// AttrSK is the sort key attribute of the table.
	AttrSK = "SK"

	// CreditsSK is the sort key of a user's credit balance record.
	CreditsSK = "CREDITS"
	// GenSKPrefix prefixes every history entry sort key.
	GenSKPrefix = "GEN#"
	// ShareMetaSK is the sort key of a share link record.
	ShareMetaSK = "META"
)

// UserPK builds the partition key holding all of a user's records.
func UserPK(sub string) string {
	return "USER#" + sub
}

// GenSK builds a history entry sort key. The RFC3339 timestamp leads so the
// range is lexicographically time-ordered; the request id disambiguates
// entries created in the same second.
func GenSK(createdAt, requestID string) string {
	return fmt.Sprintf("%s%s#%s", GenSKPrefix, createdAt, requestID)
}

// SharePK builds the partition key of a share link record.
func SharePK(token string) string {
	return "SHARE#" + token
}
