package utils

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToSQLStr(t *testing.T) {
	assert.Equal(t, sql.NullString{String: "olia", Valid: true}, ToSQLStr("olia"))
	assert.Equal(t, sql.NullString{}, ToSQLStr(""))
}

func TestFromSQLStr(t *testing.T) {
	assert.Equal(t, "olia", FromSQLStr(sql.NullString{String: "olia", Valid: true}))
	assert.Equal(t, "", FromSQLStr(sql.NullString{String: "olia"}))
}

func TestToSQLTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, sql.NullTime{Time: now, Valid: true}, ToSQLTime(now))
	assert.Equal(t, sql.NullTime{}, ToSQLTime(time.Time{}))
}

func TestFromSQLTimePtr(t *testing.T) {
	now := time.Now()
	assert.Equal(t, &now, FromSQLTimePtr(sql.NullTime{Time: now, Valid: true}))
	assert.Nil(t, FromSQLTimePtr(sql.NullTime{}))
}
