package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"registration-system/internal/status"
	"registration-system/models"
)

// scriptStub fakes the remote spreadsheet scripting endpoint.
func scriptStub(t *testing.T, handler func(action string, q map[string]string) (any, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := make(map[string]string)
		for k, v := range r.URL.Query() {
			q[k] = v[0]
		}

		data, errMsg := handler(q["action"], q)
		if errMsg != "" {
			json.NewEncoder(w).Encode(map[string]any{"success": false, "error": errMsg})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
	}))
}

func TestSheetStore_Create(t *testing.T) {
	srv := scriptStub(t, func(action string, q map[string]string) (any, string) {
		require.Equal(t, "add", action)
		assert.Equal(t, "Alice", q["studentName"])
		assert.Equal(t, "12345678", q["phoneNumber"])
		assert.Equal(t, "CS", q["programme"])
		assert.Equal(t, "science", q["category"])
		return models.Registration{
			ID:          "row42",
			StudentName: "Alice",
			PhoneNumber: "12345678",
			Programme:   "CS",
			Category:    "science",
			Status:      models.DefaultStatus,
			Timestamp:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		}, ""
	})
	defer srv.Close()

	st := NewSheetStore(srv.URL, 5*time.Second)
	reg, err := st.Create(context.Background(), "Alice", "12345678", "CS", "science")
	require.NoError(t, err)
	assert.Equal(t, "row42", reg.ID)
	assert.Equal(t, models.DefaultStatus, reg.Status)
}

func TestSheetStore_List(t *testing.T) {
	srv := scriptStub(t, func(action string, q map[string]string) (any, string) {
		require.Equal(t, "getAll", action)
		assert.Equal(t, "science", q["category"])
		return []models.Registration{
			{ID: "b", StudentName: "Bob"},
			{ID: "a", StudentName: "Alice"},
		}, ""
	})
	defer srv.Close()

	st := NewSheetStore(srv.URL, 5*time.Second)
	regs, err := st.List(context.Background(), "science")
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, "b", regs[0].ID)
}

func TestSheetStore_UpdateStatusNotFound(t *testing.T) {
	srv := scriptStub(t, func(action string, q map[string]string) (any, string) {
		return nil, "registration not found"
	})
	defer srv.Close()

	st := NewSheetStore(srv.URL, 5*time.Second)
	_, err := st.UpdateStatus(context.Background(), "ghost", "waiting")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestSheetStore_NotFoundCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "no such row",
			"code":    "not_found",
		})
	}))
	defer srv.Close()

	st := NewSheetStore(srv.URL, 5*time.Second)
	_, err := st.UpdateStatus(context.Background(), "ghost", "waiting")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestSheetStore_NotFoundSubstringDoesNotMatch(t *testing.T) {
	// Only the contract's code or exact messages mean "not found"; an
	// unrelated failure mentioning the words stays a store error.
	srv := scriptStub(t, func(action string, q map[string]string) (any, string) {
		return nil, "sheet tab not found in workbook"
	})
	defer srv.Close()

	st := NewSheetStore(srv.URL, 5*time.Second)
	_, err := st.List(context.Background(), "")
	assert.ErrorIs(t, err, status.ErrStore)
	assert.NotErrorIs(t, err, status.ErrNotFound)
}

func TestSheetStore_RemoteErrorMapsToStore(t *testing.T) {
	srv := scriptStub(t, func(action string, q map[string]string) (any, string) {
		return nil, "quota exceeded"
	})
	defer srv.Close()

	st := NewSheetStore(srv.URL, 5*time.Second)
	_, err := st.List(context.Background(), "")
	assert.ErrorIs(t, err, status.ErrStore)
}

func TestSheetStore_TimeoutMapsToTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	st := NewSheetStore(srv.URL, 50*time.Millisecond)
	_, err := st.List(context.Background(), "")
	assert.ErrorIs(t, err, status.ErrTimeout)
}

func TestSheetStore_Settings(t *testing.T) {
	stored := map[string]string{}
	srv := scriptStub(t, func(action string, q map[string]string) (any, string) {
		switch action {
		case "saveSettings":
			stored[q["key"]] = q["value"]
			return true, ""
		case "getSetting":
			v, ok := stored[q["key"]]
			if !ok {
				return nil, ""
			}
			return v, ""
		case "getSettings":
			return stored, ""
		}
		return nil, "unknown action"
	})
	defer srv.Close()

	st := NewSheetStore(srv.URL, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, st.SetSetting(ctx, models.KeyEventName, "Open Day"))

	v, err := st.GetSetting(ctx, models.KeyEventName)
	require.NoError(t, err)
	assert.Equal(t, "Open Day", v)

	// Null data means the key is absent.
	_, err = st.GetSetting(ctx, "missing")
	assert.ErrorIs(t, err, status.ErrNotFound)

	all, err := st.GetAllSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{models.KeyEventName: "Open Day"}, all)
}

func TestSheetStore_DeleteAndClear(t *testing.T) {
	var gotAction, gotID, gotCategory string
	srv := scriptStub(t, func(action string, q map[string]string) (any, string) {
		gotAction, gotID, gotCategory = action, q["id"], q["category"]
		return true, ""
	})
	defer srv.Close()

	st := NewSheetStore(srv.URL, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, st.Delete(ctx, "row7"))
	assert.Equal(t, "delete", gotAction)
	assert.Equal(t, "row7", gotID)

	require.NoError(t, st.ClearAll(ctx, "science"))
	assert.Equal(t, "clear", gotAction)
	assert.Equal(t, "science", gotCategory)

	require.NoError(t, st.ClearAll(ctx, ""))
	assert.Equal(t, "", gotCategory)
}
