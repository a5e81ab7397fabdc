package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const availableStatus = `{"model_version_status":[{"version":"1","state":"AVAILABLE","status":{"error_code":"OK"}}]}`

func newModelServer(t *testing.T, available map[string]bool, predictBody string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			name := r.URL.Path[len("/v1/models/"):]
			if !available[name] {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{"error":"Servable not found"}`))
				return
			}
			_, _ = w.Write([]byte(availableStatus))
		case http.MethodPost:
			var req predictRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Instances) != 1 {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"bad instances"}`))
				return
			}
			_, _ = w.Write([]byte(predictBody))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestParsePrediction(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		check   func(t *testing.T, p *RawPrediction)
	}{
		{
			name:    "row format with nested logits",
			payload: `{"predictions":[{"pitch":[[0.1,0.2,0.7]],"step":[0.25],"duration":0.5}]}`,
			check: func(t *testing.T, p *RawPrediction) {
				assert.Equal(t, []float64{0.1, 0.2, 0.7}, p.Logits[FieldPitch])
				step, ok := p.Scalar(FieldStep)
				require.True(t, ok)
				assert.InDelta(t, 0.25, step, 1e-9)
				assert.InDelta(t, 0.5, p.Values[FieldDuration], 1e-9)
			},
		},
		{
			name:    "columnar format",
			payload: `{"outputs":{"pitch":[1,2],"step":[[0.1]]}}`,
			check: func(t *testing.T, p *RawPrediction) {
				assert.Len(t, p.Logits[FieldPitch], 2)
				assert.InDelta(t, 0.1, p.Values[FieldStep], 1e-9)
			},
		},
		{name: "invalid json", payload: `{"predictions":`, wantErr: true},
		{name: "no outputs", payload: `{"predictions":[]}`, wantErr: true},
		{name: "empty outputs", payload: `{"predictions":[{"pitch":[]}]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePrediction([]byte(tt.payload))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, p)
		})
	}
}

func TestTFServingPredictor_Predict(t *testing.T) {
	srv := newModelServer(t, nil, `{"predictions":[{"pitch":[0,0,9],"step":[0.5],"duration":[0.25]}]}`)
	p := NewTFServingPredictor(srv.URL+"/", "lstm_attention", time.Second)

	assert.Equal(t, "lstm_attention", p.Name())

	pred, err := p.Predict(context.Background(), [][]float64{{0.5, 0.1, 0.1}})
	require.NoError(t, err)
	assert.Len(t, pred.Logits[FieldPitch], 3)
	d, ok := pred.Scalar(FieldDuration)
	require.True(t, ok)
	assert.InDelta(t, 0.25, d, 1e-9)
}

func TestTFServingPredictor_PredictErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	p := NewTFServingPredictor(srv.URL, "lstm_attention", time.Second)
	_, err := p.Predict(context.Background(), [][]float64{{0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestTFServingPredictor_CheckAvailable(t *testing.T) {
	srv := newModelServer(t, map[string]bool{"lstm_attention": true}, `{}`)

	require.NoError(t, NewTFServingPredictor(srv.URL, "lstm_attention", time.Second).CheckAvailable(context.Background()))
	require.Error(t, NewTFServingPredictor(srv.URL, "missing", time.Second).CheckAvailable(context.Background()))
}

func TestLoadRegistry(t *testing.T) {
	all := map[string]bool{}
	for _, v := range Variants() {
		all[v.ModelName] = true
	}

	t.Run("all variants available", func(t *testing.T) {
		srv := newModelServer(t, all, `{}`)
		r, err := LoadRegistry(context.Background(), srv.URL, time.Second, Variants())
		require.NoError(t, err)
		assert.Equal(t, []string{"v0", "v1", "v2"}, r.Names())

		for name, err := range r.Check(context.Background()) {
			assert.NoError(t, err, name)
		}
	})

	t.Run("missing variant fails startup", func(t *testing.T) {
		partial := map[string]bool{VariantContinuous.ModelName: true}
		srv := newModelServer(t, partial, `{}`)
		_, err := LoadRegistry(context.Background(), srv.URL, time.Second, Variants())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "v0")
	})

	t.Run("no server url", func(t *testing.T) {
		_, err := LoadRegistry(context.Background(), "", time.Second, Variants())
		require.Error(t, err)
	})
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(Binding{Variant: VariantCategorical, Predictor: NewTFServingPredictor("http://localhost:8501", "x", 0)})

	v, p, err := r.Get("v2")
	require.NoError(t, err)
	assert.Equal(t, DurationCategorical, v.Duration)
	assert.Equal(t, "x", p.Name())

	_, _, err = r.Get("v9")
	require.Error(t, err)
}

func TestVariants(t *testing.T) {
	v, err := LookupVariant("V1")
	require.NoError(t, err)
	assert.Equal(t, 50, v.WindowLength)
	assert.Equal(t, 1, v.Index(FieldStep))
	assert.False(t, v.Has(FieldVelocity))

	_, err = LookupVariant("v7")
	require.Error(t, err)

	assert.True(t, VariantPolyphonic.Categorical(FieldPolyphony))
	assert.False(t, VariantContinuous.Categorical(FieldDuration))
	assert.True(t, VariantCategorical.Categorical(FieldDuration))
	assert.Len(t, VariantPolyphonic.Features, 6)
	assert.Equal(t, 25, VariantPolyphonic.WindowLength)
}
