package realtime

import (
	"testing"
	"time"

	"github.com/docuflow/docuflow/document"
)

func collectEvents(t *testing.T, sink *fakeSink, want int) []StatusEvent {
	t.Helper()
	// Skip the welcome message at index 0.
	if !waitFor(t, time.Second, func() bool { return sink.messageCount() == want+1 }) {
		t.Fatalf("expected %d events, got %d messages", want, sink.messageCount()-1)
	}

	events := make([]StatusEvent, 0, want)
	for i := 1; i <= want; i++ {
		ev, ok := sink.message(i).(StatusEvent)
		if !ok {
			t.Fatalf("message %d: expected StatusEvent, got %T", i, sink.message(i))
		}
		events = append(events, ev)
	}
	return events
}

func TestMilestoneProgressValues(t *testing.T) {
	r := NewRegistry(testLogger())
	n := NewNotifier(r, testLogger())

	// A connection with no document subscription observes the global stream.
	sink := &fakeSink{}
	r.Connect(sink)

	n.ExtractionStarted(1)
	n.ExtractionCompleted(1, "pdf_text", 3)
	n.AIProcessingStarted(1)
	n.ClassificationCompleted(1, document.TypeInvoice, 0.95)
	n.ProcessingCompleted(1, 4.2, document.TypeInvoice)
	n.ProcessingFailed(2, "boom")

	events := collectEvents(t, sink, 6)

	wantProgress := []int{10, 40, 50, 70, 100, 0}
	wantStatus := []document.Status{
		document.StatusProcessing,
		document.StatusProcessing,
		document.StatusProcessing,
		document.StatusProcessing,
		document.StatusCompleted,
		document.StatusFailed,
	}
	for i, ev := range events {
		if ev.Type != "document_status" {
			t.Errorf("event %d: expected type document_status, got %s", i, ev.Type)
		}
		if ev.Progress == nil || *ev.Progress != wantProgress[i] {
			t.Errorf("event %d: expected progress %d, got %v", i, wantProgress[i], ev.Progress)
		}
		if ev.Status != wantStatus[i] {
			t.Errorf("event %d: expected status %s, got %s", i, wantStatus[i], ev.Status)
		}
		if ev.Timestamp == "" {
			t.Errorf("event %d: missing timestamp", i)
		}
	}
}

func TestExtractionCompletedMetadata(t *testing.T) {
	r := NewRegistry(testLogger())
	n := NewNotifier(r, testLogger())
	sink := &fakeSink{}
	r.Connect(sink)

	n.ExtractionCompleted(1, "docx", 0)
	n.ExtractionCompleted(1, "pdf_text", 5)

	events := collectEvents(t, sink, 2)

	if _, present := events[0].Metadata["page_count"]; present {
		t.Error("expected page_count to be omitted when zero")
	}
	if events[0].Metadata["extraction_method"] != "docx" {
		t.Errorf("unexpected extraction_method: %v", events[0].Metadata["extraction_method"])
	}
	if events[1].Metadata["page_count"] != 5 {
		t.Errorf("expected page_count 5, got %v", events[1].Metadata["page_count"])
	}
}

func TestProcessingCompletedOmitsUnknownType(t *testing.T) {
	r := NewRegistry(testLogger())
	n := NewNotifier(r, testLogger())
	sink := &fakeSink{}
	r.Connect(sink)

	n.ProcessingCompleted(1, 2.5, document.TypeUnknown)
	n.ProcessingCompleted(2, 3.5, document.TypeContract)

	events := collectEvents(t, sink, 2)

	if _, present := events[0].Metadata["document_type"]; present {
		t.Error("expected document_type to be omitted for unknown type")
	}
	if events[1].Metadata["document_type"] != document.TypeContract {
		t.Errorf("expected document_type contract, got %v", events[1].Metadata["document_type"])
	}
	if events[0].Metadata["processing_time"] != 2.5 {
		t.Errorf("expected processing_time 2.5, got %v", events[0].Metadata["processing_time"])
	}
}

func TestProcessingFailedCarriesError(t *testing.T) {
	r := NewRegistry(testLogger())
	n := NewNotifier(r, testLogger())
	sink := &fakeSink{}
	r.Connect(sink)

	n.ProcessingFailed(9, "extraction exploded")

	events := collectEvents(t, sink, 1)
	if events[0].Metadata["error"] != "extraction exploded" {
		t.Errorf("expected error metadata, got %v", events[0].Metadata)
	}
	if events[0].DocumentID != 9 {
		t.Errorf("expected document id 9, got %d", events[0].DocumentID)
	}
}

func TestSubscriberReceivesTargetedThenGlobalCopy(t *testing.T) {
	r := NewRegistry(testLogger())
	n := NewNotifier(r, testLogger())
	sink := &fakeSink{}
	c := r.Connect(sink)
	r.Subscribe(3, c.ID)

	n.ExtractionStarted(3)

	// Subscribers are on both delivery paths: the targeted document broadcast
	// lands first, then the global copy.
	events := collectEvents(t, sink, 2)
	if events[0].DocumentID != 3 || events[1].DocumentID != 3 {
		t.Errorf("expected both copies for document 3, got %v", events)
	}
}
