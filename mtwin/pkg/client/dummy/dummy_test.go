/*
Copyright 2019 The edgeOn Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package dummy

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwzl/edgeTwin/mtwin/pkg/client"
	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	dir, err := ioutil.TempDir("", "dummy")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0644))
	return path
}

func TestOpenLoadsTwinFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "yaml", file: "twin.yaml", content: "Interval: \"2,5\"\nNames:\n  - a\n  - b\n"},
		{name: "json", file: "twin.json", content: `{"Interval":"2,5","Names":["a","b"]}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := New(WithTwinFile(writeFile(t, test.file, test.content)))

			var status client.ConnectionStatus
			c.SetStatusHandler(func(s client.ConnectionStatus, reason string) { status = s })
			require.NoError(t, c.Open(context.Background()))
			assert.Equal(t, client.Connected, status)

			twin, err := c.GetTwin(context.Background())
			require.NoError(t, err)
			assert.Equal(t, []string{"Interval", "Names"}, twin.Desired.Keys())
			v, _ := twin.Desired.Get("Interval")
			assert.Equal(t, "2,5", v)

			require.NoError(t, c.Close())
			assert.Equal(t, client.Disconnected, status)
		})
	}
}

func TestOpenRejectsUnknownFile(t *testing.T) {
	c := New(WithTwinFile(writeFile(t, "twin.txt", "x")))
	assert.Error(t, c.Open(context.Background()))

	c = New(WithTwinFile("/does/not/exist.yaml"))
	assert.Error(t, c.Open(context.Background()))
}

func TestCallsNeedOpenClient(t *testing.T) {
	c := New()
	_, err := c.GetTwin(context.Background())
	assert.Equal(t, client.ErrNotConnected, err)
	assert.Equal(t, client.ErrNotConnected, c.UpdateReported(context.Background(), propbag.New()))
}

func TestUpdateReportedMerges(t *testing.T) {
	c := New()
	require.NoError(t, c.Open(context.Background()))

	first := propbag.New()
	first.Set("A", 1)
	first.Set("B", 2)
	require.NoError(t, c.UpdateReported(context.Background(), first))

	second := propbag.New()
	second.Set("B", 3)
	require.NoError(t, c.UpdateReported(context.Background(), second))

	reported := c.Reported()
	b, _ := reported.Get("B")
	assert.Equal(t, 3, b)
	assert.Equal(t, int64(2), client.BagVersion(reported))
}

func TestPushDesiredDispatches(t *testing.T) {
	seed := propbag.New()
	seed.Set("Name", "seed")
	c := New(WithDesired(seed))
	require.NoError(t, c.Open(context.Background()))

	var got *propbag.Bag
	c.SetDesiredHandler(func(desired *propbag.Bag) error {
		got = desired
		return nil
	})

	patch := propbag.New()
	patch.Set("Name", "patched")
	require.NoError(t, c.PushDesired(patch))

	require.NotNil(t, got)
	v, _ := got.Get("Name")
	assert.Equal(t, "patched", v)
	assert.Equal(t, int64(1), client.BagVersion(got))
	assert.False(t, patch.Contains(client.VersionKey))

	twin, err := c.GetTwin(context.Background())
	require.NoError(t, err)
	v, _ = twin.Desired.Get("Name")
	assert.Equal(t, "patched", v)
	assert.Equal(t, int64(1), twin.Version())
}

func TestEventsInputsAndMethods(t *testing.T) {
	c := New()

	msg := client.NewMessage([]byte(`{"temperature":21}`))
	require.NoError(t, c.SendEvent(context.Background(), "output1", msg))
	events := c.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "output1", events[0].Output)
	assert.Same(t, msg, events[0].Message)

	var inputs []string
	c.SetInputHandler("input1", func(input string, m *client.Message) error {
		inputs = append(inputs, input)
		return nil
	})
	require.NoError(t, c.DeliverInput("input1", msg))
	assert.Equal(t, []string{"input1"}, inputs)

	c.SetMethodHandler("echo", func(req *client.MethodRequest) *client.MethodResponse {
		return client.NewMethodResponse(client.StatusOK, req.Payload)
	})
	resp := c.CallMethod(&client.MethodRequest{Name: "echo", Payload: []byte("hi")})
	assert.Equal(t, "hi", string(resp.Payload))

	resp, err := c.InvokeMethod(context.Background(), "device", "module", &client.MethodRequest{Name: "remote"})
	require.NoError(t, err)
	assert.Equal(t, client.StatusOK, resp.Status)
}
