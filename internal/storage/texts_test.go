package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conorfennell/yomu/internal/domain"
)

func TestSaveText(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	t3 := t2.Add(time.Minute)

	first, outcome, err := db.SaveText(ctx, domain.Text{Title: "吾輩は猫である", Content: "吾輩は猫である。名前はまだ無い。"}, t1)
	if err != nil {
		t.Fatalf("SaveText() returned an unexpected error: %v", err)
	}
	if outcome != domain.TextCreated || first.ID == "" {
		t.Fatalf("Expected a created text with an id, got %v %+v", outcome, first)
	}

	second, _, err := db.SaveText(ctx, domain.Text{Title: "羅生門", Content: "ある日の暮方の事である。"}, t2)
	if err != nil {
		t.Fatalf("SaveText() returned an unexpected error: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("Expected a fresh id for the second text")
	}

	texts, err := db.ListTexts(ctx)
	if err != nil {
		t.Fatalf("ListTexts() returned an unexpected error: %v", err)
	}
	if len(texts) != 2 || texts[0].ID != second.ID {
		t.Fatalf("Expected the newest text first, got %+v", texts)
	}

	t.Run("update moves the text to the front", func(t *testing.T) {
		updated, outcome, err := db.SaveText(ctx, domain.Text{ID: first.ID, Title: "猫", Content: "改訂版"}, t3)
		if err != nil {
			t.Fatalf("SaveText() returned an unexpected error: %v", err)
		}
		if outcome != domain.TextUpdated {
			t.Errorf("Expected outcome Updated, but got %v", outcome)
		}
		if updated.ID != first.ID || updated.Title != "猫" || updated.Content != "改訂版" {
			t.Errorf("Unexpected updated text: %+v", updated)
		}
		if !updated.CreatedAt.Equal(t3) {
			t.Errorf("Expected created_at to be refreshed to %v, got %v", t3, updated.CreatedAt)
		}

		texts, err := db.ListTexts(ctx)
		if err != nil {
			t.Fatalf("ListTexts() returned an unexpected error: %v", err)
		}
		if len(texts) != 2 {
			t.Fatalf("Expected 2 texts, got %d", len(texts))
		}
		if texts[0].ID != first.ID || texts[1].ID != second.ID {
			t.Errorf("Expected the updated text first, got %s then %s", texts[0].Title, texts[1].Title)
		}
	})

	t.Run("unknown id inserts under a fresh id", func(t *testing.T) {
		created, outcome, err := db.SaveText(ctx, domain.Text{ID: "does-not-exist", Title: "新", Content: "新しい"}, t3)
		if err != nil {
			t.Fatalf("SaveText() returned an unexpected error: %v", err)
		}
		if outcome != domain.TextCreated {
			t.Errorf("Expected outcome Created, but got %v", outcome)
		}
		if created.ID == "does-not-exist" || created.ID == "" {
			t.Errorf("Expected a freshly generated id, got %q", created.ID)
		}
	})
}

func TestListTextsEmpty(t *testing.T) {
	db := openTestDB(t)
	texts, err := db.ListTexts(context.Background())
	if err != nil {
		t.Fatalf("ListTexts() returned an unexpected error: %v", err)
	}
	if texts == nil || len(texts) != 0 {
		t.Errorf("Expected an empty, non-nil slice, got %#v", texts)
	}
}

func TestPutSourcedText(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	sourceID, err := db.InsertSource(ctx, "/tmp/passages", SourceLocal)
	if err != nil {
		t.Fatalf("InsertSource() returned an unexpected error: %v", err)
	}
	text := domain.Text{ID: "abc123", Title: "雨", Content: "雨が降る。", SourceID: sourceID}

	written, err := db.PutSourcedText(ctx, text, now)
	if err != nil || !written {
		t.Fatalf("Expected the first put to write, got %v, %v", written, err)
	}

	written, err = db.PutSourcedText(ctx, text, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("PutSourcedText() returned an unexpected error: %v", err)
	}
	if written {
		t.Error("Expected an unchanged passage not to be rewritten")
	}
	stored, err := db.FindTextByID(ctx, "abc123")
	if err != nil || stored == nil {
		t.Fatalf("Expected to find the text, got %v, %v", stored, err)
	}
	if !stored.CreatedAt.Equal(now) {
		t.Errorf("Expected created_at to stay at %v, got %v", now, stored.CreatedAt)
	}
	if stored.SourceID != sourceID {
		t.Errorf("Expected source id %d, got %d", sourceID, stored.SourceID)
	}

	text.Content = "雨が止んだ。"
	written, err = db.PutSourcedText(ctx, text, now.Add(2*time.Hour))
	if err != nil || !written {
		t.Fatalf("Expected a changed passage to be written, got %v, %v", written, err)
	}

	bySource, err := db.TextsBySource(ctx, sourceID)
	if err != nil {
		t.Fatalf("TextsBySource() returned an unexpected error: %v", err)
	}
	if len(bySource) != 1 || bySource[0].Content != "雨が止んだ。" {
		t.Errorf("Unexpected texts for source: %+v", bySource)
	}

	if err := db.DeleteText(ctx, "abc123"); err != nil {
		t.Fatalf("DeleteText() returned an unexpected error: %v", err)
	}
	if err := db.DeleteText(ctx, "abc123"); !errors.Is(err, ErrTextNotFound) {
		t.Errorf("Expected ErrTextNotFound on a second delete, got %v", err)
	}
}

func TestSaveTextDetachesSourcedText(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	sourceID, err := db.InsertSource(ctx, "/tmp/passages", SourceLocal)
	if err != nil {
		t.Fatalf("InsertSource() returned an unexpected error: %v", err)
	}
	imported := domain.Text{ID: "abc123", Title: "雨", Content: "原文", SourceID: sourceID}
	if _, err := db.PutSourcedText(ctx, imported, now); err != nil {
		t.Fatalf("PutSourcedText() returned an unexpected error: %v", err)
	}

	edited, outcome, err := db.SaveText(ctx, domain.Text{ID: "abc123", Title: "雨", Content: "ユーザーの編集"}, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("SaveText() returned an unexpected error: %v", err)
	}
	if outcome != domain.TextUpdated {
		t.Errorf("Expected outcome %v, but got %v", domain.TextUpdated, outcome)
	}
	if edited.SourceID != 0 {
		t.Errorf("Expected the edited text to be detached, but got source id %d", edited.SourceID)
	}

	written, err := db.PutSourcedText(ctx, imported, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("PutSourcedText() returned an unexpected error: %v", err)
	}
	if written {
		t.Error("Expected a detached text not to be overwritten")
	}

	stored, err := db.FindTextByID(ctx, "abc123")
	if err != nil || stored == nil {
		t.Fatalf("Expected to find the text, got %v, %v", stored, err)
	}
	if stored.Content != "ユーザーの編集" {
		t.Errorf("Expected the edit to survive, but got %q", stored.Content)
	}

	bySource, err := db.TextsBySource(ctx, sourceID)
	if err != nil {
		t.Fatalf("TextsBySource() returned an unexpected error: %v", err)
	}
	if len(bySource) != 0 {
		t.Errorf("Expected no texts for the source, but got %+v", bySource)
	}
}
