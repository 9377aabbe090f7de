package ingest

import (
	"context"
	"fmt"

	"github.com/ritsuke/hyperion/internal/docstore"
	"github.com/ritsuke/hyperion/internal/graph"
)

// refreshUser fetches the latest user from the source and either creates
// the user (document plus graph node) or updates the stored score when
// upstream karma moved. Reports whether the user was new.
func (s *Service) refreshUser(ctx context.Context, userName string) (bool, error) {
	latest, err := s.source.User(ctx, userName)
	if err != nil {
		return false, fmt.Errorf("fetch user %q: %w", userName, err)
	}

	key := docstore.Key("User", s.qualify(latest.ID))
	exists, err := s.docs.ExistsMany(ctx, []string{key})
	if err != nil {
		return false, fmt.Errorf("check user %q: %w", userName, err)
	}

	if len(exists) == 0 || !exists[0] {
		doc := docstore.UserDoc{About: optionalString(latest.About)}
		if err := s.docs.SetJSON(ctx, key, doc); err != nil {
			return false, err
		}
		if err := s.graph.UpsertUser(ctx, graph.User{
			Name:    latest.ID,
			Created: latest.Created,
			Score:   latest.Karma,
		}); err != nil {
			return false, err
		}

		s.logger.Debug().
			Str("operation", "user-activity").
			Str("user", latest.ID).
			Msg("saved new user")
		return true, nil
	}

	stored, found, err := s.graph.UserScore(ctx, latest.ID)
	if err != nil {
		return false, err
	}
	if found && stored != latest.Karma {
		if err := s.graph.SetUserScore(ctx, latest.ID, latest.Karma); err != nil {
			return false, err
		}
		s.logger.Debug().
			Str("operation", "user-activity").
			Str("user", latest.ID).
			Int("score", latest.Karma).
			Msg("updated user score")
	}
	return false, nil
}
