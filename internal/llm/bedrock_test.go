package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverse struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: text}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(12), OutputTokens: aws.Int32(5), TotalTokens: aws.Int32(17)},
	}
}

func TestBedrockClient_Complete(t *testing.T) {
	api := &fakeConverse{out: textOutput("  We open at 9.  ")}
	client := NewBedrockClient(api, "anthropic.test")

	resp, err := client.Complete(context.Background(), Request{
		System: []string{"be brief", " "},
		Messages: []Message{
			{Role: RoleSystem, Content: "extra context"},
			{Role: RoleUser, Content: "hours?"},
			{Role: RoleAssistant, Content: ""},
		},
		MaxTokens:   100,
		Temperature: -1,
	})
	require.NoError(t, err)
	assert.Equal(t, "We open at 9.", resp.Text)
	assert.Equal(t, int32(17), resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.StopReason)

	require.NotNil(t, api.input)
	assert.Equal(t, "anthropic.test", aws.ToString(api.input.ModelId))
	assert.Len(t, api.input.System, 2)
	assert.Len(t, api.input.Messages, 1)
	require.NotNil(t, api.input.InferenceConfig)
	assert.Nil(t, api.input.InferenceConfig.Temperature)
	assert.Equal(t, int32(100), aws.ToInt32(api.input.InferenceConfig.MaxTokens))
}

func TestBedrockClient_Errors(t *testing.T) {
	_, err := NewBedrockClient(&fakeConverse{}, "").Complete(context.Background(), Request{})
	assert.Error(t, err)

	api := &fakeConverse{err: errors.New("throttled")}
	_, err = NewBedrockClient(api, "m").Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.ErrorContains(t, err, "throttled")

	api = &fakeConverse{out: textOutput("hi")}
	_, err = NewBedrockClient(api, "m").Complete(context.Background(), Request{Messages: []Message{{Role: "tool", Content: "x"}}})
	assert.ErrorContains(t, err, "unsupported role")

	api = &fakeConverse{out: textOutput("   ")}
	_, err = NewBedrockClient(api, "m").Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	assert.Error(t, err)
}
