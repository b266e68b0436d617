package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, requester_id, source_id, chapter_id, title, format, page_urls_json, status, error_message, progress_done, progress_total, artifact_path, attempts, created_at, updated_at, finished_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id            int64
		requesterID   int64
		sourceID      string
		chapterID     string
		title         sql.NullString
		format        string
		pageURLs      sql.NullString
		statusStr     string
		errorMessage  sql.NullString
		progressDone  sql.NullInt64
		progressTotal sql.NullInt64
		artifactPath  sql.NullString
		attempts      sql.NullInt64
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		finishedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&requesterID,
		&sourceID,
		&chapterID,
		&title,
		&format,
		&pageURLs,
		&statusStr,
		&errorMessage,
		&progressDone,
		&progressTotal,
		&artifactPath,
		&attempts,
		&createdRaw,
		&updatedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:            id,
		RequesterID:   requesterID,
		SourceID:      sourceID,
		ChapterID:     chapterID,
		Title:         title.String,
		Format:        format,
		Status:        Status(statusStr),
		ErrorMessage:  errorMessage.String,
		ProgressDone:  int(progressDone.Int64),
		ProgressTotal: int(progressTotal.Int64),
		ArtifactPath:  artifactPath.String,
		Attempts:      int(attempts.Int64),
	}
	if pageURLs.Valid && pageURLs.String != "" {
		if err := json.Unmarshal([]byte(pageURLs.String), &job.PageURLs); err != nil {
			return nil, fmt.Errorf("decode page urls for job %d: %w", id, err)
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			job.FinishedAt = &finished
		}
	}
	return job, nil
}

func encodePageURLs(urls []string) (any, error) {
	if len(urls) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(urls)
	if err != nil {
		return nil, fmt.Errorf("encode page urls: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
