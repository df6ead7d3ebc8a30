package store

import "testing"

func TestEnsureSystemLabelsIdempotent(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 2; i++ {
		if err := s.EnsureSystemLabels(); err != nil {
			t.Fatalf("EnsureSystemLabels pass %d failed: %v", i, err)
		}
	}

	labels, err := s.ListLabels()
	if err != nil {
		t.Fatalf("ListLabels failed: %v", err)
	}
	count := 0
	for _, l := range labels {
		if l.System && l.Type == LabelTypeSystemTag {
			count++
		}
	}
	if count != len(PlaytimeBuckets) {
		t.Fatalf("system label count = %d, want %d", count, len(PlaytimeBuckets))
	}
}

func TestSystemLabelsAreProtected(t *testing.T) {
	s := openTestStore(t)
	if err := s.EnsureSystemLabels(); err != nil {
		t.Fatalf("EnsureSystemLabels failed: %v", err)
	}

	l, err := s.GetLabelByName("Played", LabelTypeSystemTag)
	if err != nil {
		t.Fatalf("GetLabelByName failed: %v", err)
	}
	if err := s.DeleteLabel(l.ID); err != ErrLabelNotFound {
		t.Fatalf("system label delete should be refused, got %v", err)
	}
	if err := s.UpdateLabel(l.ID, "Renamed", "", ""); err != ErrLabelNotFound {
		t.Fatalf("system label rename should be refused, got %v", err)
	}
}

func TestReplaceAutoSystemTags(t *testing.T) {
	s := openTestStore(t)
	if err := s.EnsureSystemLabels(); err != nil {
		t.Fatalf("EnsureSystemLabels failed: %v", err)
	}
	gameID := mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "1", Name: "A"})

	if err := s.ReplaceAutoSystemTags(gameID, "Just Tried"); err != nil {
		t.Fatalf("first bucket failed: %v", err)
	}
	if err := s.ReplaceAutoSystemTags(gameID, "Well Played"); err != nil {
		t.Fatalf("second bucket failed: %v", err)
	}

	labels, err := s.LabelsForGame(gameID)
	if err != nil {
		t.Fatalf("LabelsForGame failed: %v", err)
	}
	var systemTags []string
	for _, l := range labels {
		if l.Type == LabelTypeSystemTag {
			systemTags = append(systemTags, l.Name)
		}
	}
	if len(systemTags) != 1 || systemTags[0] != "Well Played" {
		t.Fatalf("exactly one bucket expected, got %v", systemTags)
	}
}

func TestReplaceAutoSystemTagsKeepsUserCollections(t *testing.T) {
	s := openTestStore(t)
	if err := s.EnsureSystemLabels(); err != nil {
		t.Fatalf("EnsureSystemLabels failed: %v", err)
	}
	gameID := mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "1", Name: "A"})

	collectionID, err := s.CreateLabel("Favorites", "", "star", "#ffd700")
	if err != nil {
		t.Fatalf("CreateLabel failed: %v", err)
	}
	if err := s.AssignLabel(collectionID, gameID, false); err != nil {
		t.Fatalf("AssignLabel failed: %v", err)
	}

	if err := s.ReplaceAutoSystemTags(gameID, "Played"); err != nil {
		t.Fatalf("ReplaceAutoSystemTags failed: %v", err)
	}

	labels, err := s.LabelsForGame(gameID)
	if err != nil {
		t.Fatalf("LabelsForGame failed: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("expected collection + bucket, got %+v", labels)
	}
}

func TestAssignLabelIdempotent(t *testing.T) {
	s := openTestStore(t)
	gameID := mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "1", Name: "A"})
	labelID, err := s.CreateLabel("Backlog", "", "", "")
	if err != nil {
		t.Fatalf("CreateLabel failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.AssignLabel(labelID, gameID, false); err != nil {
			t.Fatalf("AssignLabel pass %d failed: %v", i, err)
		}
	}

	labels, err := s.LabelsForGame(gameID)
	if err != nil {
		t.Fatalf("LabelsForGame failed: %v", err)
	}
	if len(labels) != 1 {
		t.Fatalf("duplicate assignment created extra rows: %+v", labels)
	}
}

func TestReplaceAutoSystemTagsKeepsUserRowOnSameLabel(t *testing.T) {
	s := openTestStore(t)
	if err := s.EnsureSystemLabels(); err != nil {
		t.Fatalf("EnsureSystemLabels failed: %v", err)
	}
	gameID := mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "1", Name: "A"})

	played, err := s.GetLabelByName("Played", LabelTypeSystemTag)
	if err != nil {
		t.Fatalf("GetLabelByName failed: %v", err)
	}
	if err := s.AssignLabel(played.ID, gameID, false); err != nil {
		t.Fatalf("AssignLabel failed: %v", err)
	}

	// The engine landing on the same bucket must not take over the
	// user's row, and a later bucket change must not delete it.
	if err := s.ReplaceAutoSystemTags(gameID, "Played"); err != nil {
		t.Fatalf("same-bucket replace failed: %v", err)
	}
	var auto bool
	err = s.db.QueryRow("SELECT auto FROM game_labels WHERE label_id = ? AND game_id = ?",
		played.ID, gameID).Scan(&auto)
	if err != nil {
		t.Fatalf("user row gone after same-bucket replace: %v", err)
	}
	if auto {
		t.Fatal("user row was converted to engine-owned")
	}

	if err := s.ReplaceAutoSystemTags(gameID, "Well Played"); err != nil {
		t.Fatalf("bucket change failed: %v", err)
	}
	labels, err := s.LabelsForGame(gameID)
	if err != nil {
		t.Fatalf("LabelsForGame failed: %v", err)
	}
	names := make(map[string]bool, len(labels))
	for _, l := range labels {
		names[l.Name] = true
	}
	if !names["Played"] || !names["Well Played"] {
		t.Fatalf("expected user Played + auto Well Played, got %v", names)
	}
}
