package noderun

import "testing"

func TestIsEnvelopeRequiresAllFiveKeys(t *testing.T) {
	complete := map[string]any{
		"system_contract": map[string]any{}, "agent_profile": map[string]any{},
		"task_context": map[string]any{}, "user_request": "", "output_contract": map[string]any{},
	}
	if !IsEnvelope(complete) {
		t.Fatal("expected a payload with all five keys to be recognized as an envelope")
	}
	delete(complete, "output_contract")
	if IsEnvelope(complete) {
		t.Fatal("expected a payload missing a key to not be recognized as an envelope")
	}
	if IsEnvelope(nil) {
		t.Fatal("expected nil to not be an envelope")
	}
}

func TestExtractUserRequestPrefersUserRequestThenPrompt(t *testing.T) {
	if got := ExtractUserRequest(map[string]any{"user_request": "a", "prompt": "b"}); got != "a" {
		t.Fatalf("got %q, want a", got)
	}
	if got := ExtractUserRequest(map[string]any{"prompt": "b"}); got != "b" {
		t.Fatalf("got %q, want b", got)
	}
	if got := ExtractUserRequest(map[string]any{}); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestBuildEnvelopeMergesExistingEnvelopeSections(t *testing.T) {
	source := map[string]any{
		"system_contract": map[string]any{"role": "existing"},
		"agent_profile":    map[string]any{"name": "existing-agent"},
		"task_context":     map[string]any{"key": "value"},
		"user_request":     "existing request",
		"output_contract":  map[string]any{},
	}
	env := BuildEnvelope(BuildOptions{SourcePayload: source})
	if env.UserRequest != "existing request" {
		t.Fatalf("UserRequest = %q, want existing request", env.UserRequest)
	}
	if env.SystemContract["role"] != "existing" {
		t.Fatalf("SystemContract not merged: %+v", env.SystemContract)
	}
}

func TestBuildEnvelopeExplicitUserRequestWins(t *testing.T) {
	source := map[string]any{
		"system_contract": map[string]any{}, "agent_profile": map[string]any{},
		"task_context": map[string]any{}, "user_request": "existing", "output_contract": map[string]any{},
	}
	env := BuildEnvelope(BuildOptions{UserRequest: "explicit", SourcePayload: source})
	if env.UserRequest != "explicit" {
		t.Fatalf("UserRequest = %q, want explicit", env.UserRequest)
	}
}

func TestBuildEnvelopeWrapsNonEnvelopePayloadAsInputPayload(t *testing.T) {
	env := BuildEnvelope(BuildOptions{UserRequest: "hi", SourcePayload: map[string]any{"foo": "bar"}})
	got, ok := env.TaskContext["input_payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected input_payload to be set, got %+v", env.TaskContext)
	}
	if got["foo"] != "bar" {
		t.Fatalf("got %+v", got)
	}
}

func TestBuildEnvelopeExplicitSectionsOverrideMergedOnes(t *testing.T) {
	source := map[string]any{
		"system_contract": map[string]any{"role": "old"}, "agent_profile": map[string]any{},
		"task_context": map[string]any{}, "user_request": "", "output_contract": map[string]any{},
	}
	env := BuildEnvelope(BuildOptions{
		SourcePayload:  source,
		SystemContract: map[string]any{"role": "new"},
	})
	if env.SystemContract["role"] != "new" {
		t.Fatalf("got %+v, want explicit override to win", env.SystemContract)
	}
}

func TestParsePromptInputPlainText(t *testing.T) {
	req, payload := ParsePromptInput("just a plain prompt")
	if req != "just a plain prompt" || payload != nil {
		t.Fatalf("got req=%q payload=%+v", req, payload)
	}
}

func TestParsePromptInputJSONEnvelope(t *testing.T) {
	req, payload := ParsePromptInput(`{"user_request": "do the thing"}`)
	if req != "do the thing" {
		t.Fatalf("req = %q, want \"do the thing\"", req)
	}
	if payload == nil || payload["user_request"] != "do the thing" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestParsePromptInputMalformedJSONFallsBackToRaw(t *testing.T) {
	req, payload := ParsePromptInput(`{not valid json`)
	if req != `{not valid json` || payload != nil {
		t.Fatalf("got req=%q payload=%+v", req, payload)
	}
}

func TestParsePromptInputEmpty(t *testing.T) {
	req, payload := ParsePromptInput("   ")
	if req != "" || payload != nil {
		t.Fatalf("got req=%q payload=%+v", req, payload)
	}
}

func TestSerializeProducesSortedKeyIndentedJSON(t *testing.T) {
	env := BuildEnvelope(BuildOptions{UserRequest: "hi"})
	out, err := Serialize(env)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if out == "" {
		t.Fatal("expected non-empty serialized envelope")
	}
}
