package response

import "testing"

func TestParseMetadataWellFormed(t *testing.T) {
	raw := `Not interested. <meta>{"emotion":"irritated","followup":"","end_call":false,"objection":"brush_off","state_feedback":"caller opened with a pitch"}</meta>`
	spoken, md, status := ParseMetadata(raw)
	if status != ParseParsed {
		t.Fatalf("status = %s", status)
	}
	if spoken != "Not interested." {
		t.Fatalf("spoken = %q", spoken)
	}
	if md.Emotion != "irritated" || md.Objection != "brush_off" {
		t.Fatalf("metadata = %+v", md)
	}
	if md.EndCall {
		t.Fatal("end_call parsed true from false")
	}
}

func TestParseMetadataEndCall(t *testing.T) {
	raw := `I'm done here. Goodbye. <meta>{"emotion":"irritated","end_call":true,"state_feedback":"pushed too hard"}</meta>`
	spoken, md, status := ParseMetadata(raw)
	if status != ParseParsed {
		t.Fatalf("status = %s", status)
	}
	if spoken != "I'm done here. Goodbye." {
		t.Fatalf("spoken = %q", spoken)
	}
	if !md.EndCall {
		t.Fatal("end_call not parsed")
	}
	if md.StateFeedback != "pushed too hard" {
		t.Fatalf("metadata = %+v", md)
	}
}

func TestParseMetadataMissingCloseDelimiter(t *testing.T) {
	raw := `Fine, go on. <meta>{"emotion":"wary","followup":"let them talk"}`
	spoken, md, status := ParseMetadata(raw)
	if status != ParseRepaired {
		t.Fatalf("status = %s", status)
	}
	if spoken != "Fine, go on." {
		t.Fatalf("spoken = %q", spoken)
	}
	if md.Emotion != "wary" {
		t.Fatalf("metadata = %+v", md)
	}
}

func TestParseMetadataTruncatedJSON(t *testing.T) {
	// Cut off mid-value: brace balancing plus string closing recovers it.
	raw := `Maybe. <meta>{"emotion":"guarded","followup":"hmm`
	spoken, md, status := ParseMetadata(raw)
	if status != ParseRepaired {
		t.Fatalf("status = %s", status)
	}
	if spoken != "Maybe." {
		t.Fatalf("spoken = %q", spoken)
	}
	if md.Emotion != "guarded" {
		t.Fatalf("metadata = %+v", md)
	}
}

func TestParseMetadataNoTag(t *testing.T) {
	spoken, _, status := ParseMetadata("Just a plain reply.")
	if status != ParseMissing || spoken != "Just a plain reply." {
		t.Fatalf("spoken=%q status=%s", spoken, status)
	}
}

func TestParseMetadataGarbageBody(t *testing.T) {
	spoken, md, status := ParseMetadata(`Sure. <meta>not json at all</meta>`)
	if status != ParseFailed {
		t.Fatalf("status = %s", status)
	}
	if spoken != "Sure." {
		t.Fatalf("spoken = %q", spoken)
	}
	if md != (Metadata{}) {
		t.Fatalf("metadata = %+v", md)
	}
}

func TestParseMetadataStripsTagMidText(t *testing.T) {
	raw := `Look. <meta>{"emotion":"flat"}</meta> I said no.`
	spoken, _, status := ParseMetadata(raw)
	if status != ParseParsed {
		t.Fatalf("status = %s", status)
	}
	if spoken != "Look.  I said no." && spoken != "Look. I said no." {
		t.Fatalf("spoken = %q", spoken)
	}
}
