package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/velia/scriba/internal/pkg/persistence"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	res := &DB{pool: pool}
	return res, nil
}

// LoadConnections loads all calendar connections of a user
func (db *DB) LoadConnections(ctx context.Context, userID string) ([]*persistence.CalendarConnection, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, user_id, provider, access_token, refresh_token, token_expires_at
		FROM calendar_connections WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("can't load connections: %w", err)
	}
	defer rows.Close()
	var res []*persistence.CalendarConnection
	for rows.Next() {
		var c persistence.CalendarConnection
		if err := rows.Scan(&c.ID, &c.UserID, &c.Provider, &c.AccessToken, &c.RefreshToken,
			&c.TokenExpiresAt); err != nil {
			return nil, fmt.Errorf("can't scan connection: %w", err)
		}
		res = append(res, &c)
	}
	return res, rows.Err()
}

// UpdateConnectionToken persists a refreshed OAuth token
func (db *DB) UpdateConnectionToken(ctx context.Context, conn *persistence.CalendarConnection) error {
	tag, err := db.pool.Exec(ctx, `UPDATE calendar_connections SET
	access_token = $2,
	refresh_token = $3,
	token_expires_at = $4,
	updated = $5
	WHERE id = $1`, conn.ID, conn.AccessToken, conn.RefreshToken, conn.TokenExpiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("can't update connection token: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("can't update connection token, no record '%s'", conn.ID)
	}
	return nil
}

// UpsertCalendar inserts or updates a calendar by (user, connection, external id).
// Returns true if a new row was created.
func (db *DB) UpsertCalendar(ctx context.Context, cal *persistence.Calendar) (bool, error) {
	var inserted bool
	err := db.pool.QueryRow(ctx, `INSERT INTO user_calendars(id, user_id, connection_id, external_id,
	name, description, color, is_primary, is_selected, auto_join, auto_record, created, updated)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	ON CONFLICT (user_id, connection_id, external_id) DO UPDATE SET
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	color = EXCLUDED.color,
	is_primary = EXCLUDED.is_primary,
	updated = EXCLUDED.updated
	RETURNING id, (xmax = 0)`, cal.ID, cal.UserID, cal.ConnectionID, cal.ExternalID,
		cal.Name, cal.Description, cal.Color, cal.Primary, cal.Selected, cal.AutoJoin,
		cal.AutoRecord, time.Now()).Scan(&cal.ID, &inserted)
	if err != nil {
		return false, fmt.Errorf("can't upsert calendar: %w", err)
	}
	return inserted, nil
}

// LoadCalendars loads all calendars of a user
func (db *DB) LoadCalendars(ctx context.Context, userID string) ([]*persistence.Calendar, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, user_id, connection_id, external_id, name, description,
	color, is_primary, is_selected, auto_join, auto_record FROM user_calendars WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("can't load calendars: %w", err)
	}
	defer rows.Close()
	var res []*persistence.Calendar
	for rows.Next() {
		var c persistence.Calendar
		if err := rows.Scan(&c.ID, &c.UserID, &c.ConnectionID, &c.ExternalID, &c.Name, &c.Description,
			&c.Color, &c.Primary, &c.Selected, &c.AutoJoin, &c.AutoRecord); err != nil {
			return nil, fmt.Errorf("can't scan calendar: %w", err)
		}
		res = append(res, &c)
	}
	return res, rows.Err()
}

// UpsertMeeting inserts or updates a meeting by (user, connection, external event id).
// Returns true if a new row was created.
func (db *DB) UpsertMeeting(ctx context.Context, m *persistence.Meeting) (bool, error) {
	var inserted bool
	err := db.pool.QueryRow(ctx, `INSERT INTO meetings(id, user_id, calendar_id, calendar_external_id,
	external_id, title, description, location, start_time, end_time, timezone, meeting_url, platform,
	attendees_count, calendar_name, calendar_color, auto_join, auto_record, created, updated)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $19)
	ON CONFLICT (user_id, calendar_id, external_id) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	location = EXCLUDED.location,
	start_time = EXCLUDED.start_time,
	end_time = EXCLUDED.end_time,
	timezone = EXCLUDED.timezone,
	meeting_url = EXCLUDED.meeting_url,
	platform = EXCLUDED.platform,
	calendar_external_id = EXCLUDED.calendar_external_id,
	calendar_name = EXCLUDED.calendar_name,
	calendar_color = EXCLUDED.calendar_color,
	attendees_count = EXCLUDED.attendees_count,
	updated = EXCLUDED.updated
	RETURNING id, (xmax = 0)`, m.ID, m.UserID, m.CalendarID, m.CalendarExternalID,
		m.ExternalID, m.Title, m.Description, m.Location, m.StartTime, m.EndTime, m.Timezone,
		m.MeetingURL, m.Platform, m.AttendeesCount, m.CalendarName, m.CalendarColor,
		m.AutoJoin, m.AutoRecord, time.Now()).Scan(&m.ID, &inserted)
	if err != nil {
		return false, fmt.Errorf("can't upsert meeting: %w", err)
	}
	return inserted, nil
}

// LoadUpcomingMeetings loads meetings of a user ending at or after the given time,
// ordered by start time
func (db *DB) LoadUpcomingMeetings(ctx context.Context, userID string, from time.Time) ([]*persistence.Meeting, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, user_id, calendar_id, calendar_external_id, external_id,
	title, description, location, start_time, end_time, timezone, meeting_url, platform, attendees_count,
	calendar_name, calendar_color, auto_join, auto_record FROM meetings
	WHERE user_id = $1 AND end_time >= $2 ORDER BY start_time ASC`, userID, from)
	if err != nil {
		return nil, fmt.Errorf("can't load meetings: %w", err)
	}
	defer rows.Close()
	var res []*persistence.Meeting
	for rows.Next() {
		var m persistence.Meeting
		if err := rows.Scan(&m.ID, &m.UserID, &m.CalendarID, &m.CalendarExternalID, &m.ExternalID,
			&m.Title, &m.Description, &m.Location, &m.StartTime, &m.EndTime, &m.Timezone,
			&m.MeetingURL, &m.Platform, &m.AttendeesCount, &m.CalendarName, &m.CalendarColor,
			&m.AutoJoin, &m.AutoRecord); err != nil {
			return nil, fmt.Errorf("can't scan meeting: %w", err)
		}
		res = append(res, &m)
	}
	return res, rows.Err()
}

// InsertRecording inserts a bot recording record
func (db *DB) InsertRecording(ctx context.Context, r *persistence.Recording) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO meeting_recordings(bot_id, meeting_id, user_id, status,
	join_time, leave_time, recording_url, created, updated)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $8)`, r.BotID, r.MeetingID, r.UserID, r.Status,
		r.JoinTime, r.LeaveTime, r.RecordingURL, time.Now())
	if err != nil {
		return fmt.Errorf("can't insert recording: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadRecording loads a recording by bot id. Returns nil, nil if none exists
func (db *DB) LoadRecording(ctx context.Context, botID string) (*persistence.Recording, error) {
	var res persistence.Recording
	err := db.pool.QueryRow(ctx, `SELECT bot_id, meeting_id, user_id, status, join_time, leave_time,
	recording_url FROM meeting_recordings WHERE bot_id = $1`, botID).Scan(&res.BotID, &res.MeetingID,
		&res.UserID, &res.Status, &res.JoinTime, &res.LeaveTime, &res.RecordingURL)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load recording: %w", err)
	}
	return &res, nil
}

// UpdateRecordingStatus applies a status transition by bot id.
// leaveTime is set only when not nil, last write wins.
func (db *DB) UpdateRecordingStatus(ctx context.Context, botID, status string, leaveTime *time.Time) error {
	tag, err := db.pool.Exec(ctx, `UPDATE meeting_recordings SET
	status = $2,
	leave_time = COALESCE($3, leave_time),
	updated = $4
	WHERE bot_id = $1`, botID, status, leaveTime, time.Now())
	if err != nil {
		return fmt.Errorf("can't update recording status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("can't update recording status, no record for bot '%s'", botID)
	}
	return nil
}

// UpsertTranscriptRaw stores the raw provider payload, keyed by (bot id, meeting id).
// The passed transcript gets the persisted row id set
func (db *DB) UpsertTranscriptRaw(ctx context.Context, tr *persistence.Transcript) error {
	err := db.pool.QueryRow(ctx, `INSERT INTO transcripts(id, bot_id, meeting_id, user_id,
	raw_transcript, recall_transcript_id, created, updated)
	VALUES($1, $2, $3, $4, $5, $6, $7, $7)
	ON CONFLICT (bot_id, meeting_id) DO UPDATE SET
	raw_transcript = EXCLUDED.raw_transcript,
	recall_transcript_id = COALESCE(EXCLUDED.recall_transcript_id, transcripts.recall_transcript_id),
	updated = EXCLUDED.updated
	RETURNING id`, tr.ID, tr.BotID, tr.MeetingID, tr.UserID, tr.RawTranscript,
		tr.RecallTranscriptID, time.Now()).Scan(&tr.ID)
	if err != nil {
		return fmt.Errorf("can't upsert transcript: %w", err)
	}
	return nil
}

// LoadTranscript loads a transcript by id. Returns nil, nil if none exists
func (db *DB) LoadTranscript(ctx context.Context, id string) (*persistence.Transcript, error) {
	var res persistence.Transcript
	err := db.pool.QueryRow(ctx, `SELECT id, bot_id, meeting_id, user_id, raw_transcript,
	recall_transcript_id, transcript_text, analysis FROM transcripts WHERE id = $1`, id).Scan(
		&res.ID, &res.BotID, &res.MeetingID, &res.UserID, &res.RawTranscript,
		&res.RecallTranscriptID, &res.Text, &res.Analysis)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load transcript: %w", err)
	}
	return &res, nil
}

// UpdateTranscriptResults persists text, analysis and the flattened insight fields in one write
func (db *DB) UpdateTranscriptResults(ctx context.Context, tr *persistence.Transcript) error {
	tag, err := db.pool.Exec(ctx, `UPDATE transcripts SET
	transcript_text = $2,
	recall_transcript_id = $3,
	analysis = $4,
	meeting_title = $5,
	meeting_summary = $6,
	key_points_by_speaker = $7,
	key_items_and_action_items = $8,
	next_steps_and_follow_ups = $9,
	considerations_and_open_issues = $10,
	notes_for_next_meeting = $11,
	tone_and_sentiment_analysis = $12,
	intent_identification = $13,
	updated = $14
	WHERE id = $1`, tr.ID, tr.Text, tr.RecallTranscriptID, tr.Analysis,
		tr.Flattened.MeetingTitle, tr.Flattened.MeetingSummary, tr.Flattened.KeyPointsBySpeaker,
		tr.Flattened.ActionItems, tr.Flattened.NextSteps, tr.Flattened.OpenIssues,
		tr.Flattened.NotesForNext, tr.Flattened.ToneAndSentiment, tr.Flattened.Intent, time.Now())
	if err != nil {
		return fmt.Errorf("can't update transcript: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("can't update transcript, no record '%s'", tr.ID)
	}
	return nil
}

// LoadUserEmail returns the email of a user
func (db *DB) LoadUserEmail(ctx context.Context, userID string) (string, error) {
	var res string
	err := db.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&res)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("can't load user email: %w", err)
	}
	return res, nil
}

// LockEmailTable marks an email of the given type as being sent.
// Fails if one was already sent or is in flight
func (db *DB) LockEmailTable(ctx context.Context, botID, msgType string) error {
	tag, err := db.pool.Exec(ctx, `INSERT INTO email_lock(bot_id, msg_type, status) VALUES($1, $2, 1)
	ON CONFLICT (bot_id, msg_type) DO NOTHING`, botID, msgType)
	if err != nil {
		return fmt.Errorf("can't lock email table: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("email already handled for '%s/%s'", botID, msgType)
	}
	return nil
}

// UnLockEmailTable finalizes the email lock: value 0 releases the lock for retry,
// other values mark the send as done
func (db *DB) UnLockEmailTable(ctx context.Context, botID, msgType string, value *int) error {
	var err error
	if value == nil || *value == 0 {
		_, err = db.pool.Exec(ctx, `DELETE FROM email_lock WHERE bot_id = $1 AND msg_type = $2 AND status = 1`,
			botID, msgType)
	} else {
		_, err = db.pool.Exec(ctx, `UPDATE email_lock SET status = $3 WHERE bot_id = $1 AND msg_type = $2`,
			botID, msgType, *value)
	}
	if err != nil {
		return fmt.Errorf("can't unlock email table: %w", err)
	}
	return nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
