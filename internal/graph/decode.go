package graph

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// TypeMismatchError reports a query result column whose value has an
// unexpected type. Positional rows misindex silently otherwise, so every
// column is decoded through these helpers.
type TypeMismatchError struct {
	Column string
	Want   string
	Got    any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("graph: column %s: want %s, got %T", e.Column, e.Want, e.Got)
}

func recordValue(record *neo4j.Record, index int, column string) (any, error) {
	if record == nil || index < 0 || index >= len(record.Values) {
		return nil, &TypeMismatchError{Column: column, Want: "value", Got: nil}
	}
	return record.Values[index], nil
}

func recordString(record *neo4j.Record, index int, column string) (string, error) {
	value, err := recordValue(record, index, column)
	if err != nil {
		return "", err
	}
	text, ok := value.(string)
	if !ok {
		return "", &TypeMismatchError{Column: column, Want: "string", Got: value}
	}
	return text, nil
}

func recordInt64(record *neo4j.Record, index int, column string) (int64, error) {
	value, err := recordValue(record, index, column)
	if err != nil {
		return 0, err
	}
	switch typed := value.(type) {
	case int64:
		return typed, nil
	case float64:
		return int64(typed), nil
	default:
		return 0, &TypeMismatchError{Column: column, Want: "int64", Got: value}
	}
}

func recordInt(record *neo4j.Record, index int, column string) (int, error) {
	value, err := recordInt64(record, index, column)
	if err != nil {
		return 0, err
	}
	return int(value), nil
}

func recordBool(record *neo4j.Record, index int, column string) (bool, error) {
	value, err := recordValue(record, index, column)
	if err != nil {
		return false, err
	}
	flag, ok := value.(bool)
	if !ok {
		return false, &TypeMismatchError{Column: column, Want: "bool", Got: value}
	}
	return flag, nil
}

func decodeStorySnapshot(record *neo4j.Record) (StorySnapshot, error) {
	id, err := recordString(record, 0, "s.name")
	if err != nil {
		return StorySnapshot{}, err
	}
	deleted, err := recordBool(record, 1, "s.deleted")
	if err != nil {
		return StorySnapshot{}, err
	}
	locked, err := recordBool(record, 2, "s.locked")
	if err != nil {
		return StorySnapshot{}, err
	}
	score, err := recordInt(record, 3, "s.score")
	if err != nil {
		return StorySnapshot{}, err
	}
	commentTotal, err := recordInt(record, 4, "s.comment_total")
	if err != nil {
		return StorySnapshot{}, err
	}
	domain, err := recordString(record, 5, "url.name")
	if err != nil {
		return StorySnapshot{}, err
	}
	author, err := recordString(record, 6, "u.name")
	if err != nil {
		return StorySnapshot{}, err
	}

	return StorySnapshot{
		ID:           id,
		Deleted:      deleted,
		Locked:       locked,
		Score:        score,
		CommentTotal: commentTotal,
		Domain:       domain,
		Author:       author,
	}, nil
}

func decodeStoryMeta(record *neo4j.Record) (StoryMeta, error) {
	id, err := recordString(record, 0, "s.name")
	if err != nil {
		return StoryMeta{}, err
	}
	score, err := recordInt(record, 1, "s.score")
	if err != nil {
		return StoryMeta{}, err
	}
	commentTotal, err := recordInt(record, 2, "s.comment_total")
	if err != nil {
		return StoryMeta{}, err
	}
	created, err := recordInt64(record, 3, "s.created")
	if err != nil {
		return StoryMeta{}, err
	}

	return StoryMeta{ID: id, Score: score, CommentTotal: commentTotal, Created: created}, nil
}
