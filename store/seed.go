package store

import (
	"context"
	"fmt"

	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/document"
)

// SeedDocuments are the demo documents loaded into an empty store. Their
// ids match document.DefaultDemoIDs and they carry no URL, so they preview
// as sample content.
var SeedDocuments = []document.Ref{
	{ID: "d1", Name: "Annual_Report_2024.pdf", SizeLabel: "2.4 MB", UpdatedAt: "2024-05-10", OwnerID: "u1"},
	{ID: "d2", Name: "Budget_Proposal_Q3.xlsx", SizeLabel: "1.1 MB", UpdatedAt: "2024-05-12", OwnerID: "u1"},
	{ID: "d3", Name: "Meeting_Minutes_May.docx", SizeLabel: "320 KB", UpdatedAt: "2024-05-15", OwnerID: "u2"},
	{ID: "d4", Name: "Strategy_Presentation.pptx", SizeLabel: "5.6 MB", UpdatedAt: "2024-05-18", OwnerID: "u2"},
	{ID: "d5", Name: "Legal_Review_Contract.pdf", SizeLabel: "890 KB", UpdatedAt: "2024-05-20", OwnerID: "u3"},
	{ID: "d6", Name: "Personnel_Plan.docx", SizeLabel: "210 KB", UpdatedAt: "2024-05-21", OwnerID: "u3"},
	{ID: "d7", Name: "Infrastructure_Costs.xlsx", SizeLabel: "640 KB", UpdatedAt: "2024-05-22", OwnerID: "u1"},
	{ID: "d8", Name: "Policy_Draft_v2.pdf", SizeLabel: "1.3 MB", UpdatedAt: "2024-05-23", OwnerID: "u2"},
}

// SeedMeetings are the sample meetings loaded into an empty store.
var SeedMeetings = []backend.Meeting{
	{
		ID: "m1", Title: "Weekly cabinet briefing", RoomID: "r1", HostID: "u1",
		StartTime: "09:00", EndTime: "10:30", Date: "2024-06-03", Status: backend.StatusOngoing,
		Participants: []string{"u1", "u2", "u3", "u4"}, DocumentIDs: []string{"d1", "d3"},
	},
	{
		ID: "m2", Title: "Budget review", RoomID: "r2", HostID: "u2",
		StartTime: "14:00", EndTime: "15:00", Date: "2024-06-04", Status: backend.StatusUpcoming,
		Participants: []string{"u2", "u3"}, DocumentIDs: []string{"d2"},
	},
	{
		ID: "m3", Title: "Legal committee", RoomID: "r1", HostID: "u3",
		StartTime: "10:00", EndTime: "11:00", Date: "2024-05-28", Status: backend.StatusFinished,
		Participants: []string{"u1", "u3"}, DocumentIDs: []string{"d5"},
	},
}

// Seed loads SeedDocuments and SeedMeetings into s when it holds no
// documents. It reports whether anything was inserted. Works with any
// backend.Store.
func Seed(ctx context.Context, s backend.Store) (bool, error) {
	docs, err := s.ListDocuments(ctx)
	if err != nil {
		return false, fmt.Errorf("store: seed: %w", err)
	}
	if len(docs) > 0 {
		return false, nil
	}
	for _, d := range SeedDocuments {
		if err := s.InsertDocument(ctx, d); err != nil {
			return false, fmt.Errorf("store: seed: %w", err)
		}
	}
	for _, m := range SeedMeetings {
		if err := s.InsertMeeting(ctx, m); err != nil {
			return false, fmt.Errorf("store: seed: %w", err)
		}
	}
	return true, nil
}
