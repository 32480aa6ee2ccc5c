package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/rahulsinghu/AstralCleanser/internal/httputil"
	"github.com/rahulsinghu/AstralCleanser/internal/render"
	"github.com/rahulsinghu/AstralCleanser/internal/scene"
)

// frameView is one playback frame with every marker added up to it.
type frameView struct {
	Index   int            `json:"index"`
	Time    string         `json:"t"`
	Samples int            `json:"samples"`
	Current [][3]float64   `json:"positions_km"`
	Trails  [][][3]float64 `json:"trails_km,omitempty"`
	Markers []markerView   `json:"markers"`
}

type markerView struct {
	T        int        `json:"t"`
	I        int        `json:"i"`
	J        int        `json:"j"`
	Position [3]float64 `json:"position_km"`
	New      bool       `json:"new"`
}

func buildFrameView(f render.Frame, samples int, trails bool) frameView {
	v := frameView{
		Index:   f.Index,
		Time:    f.Time.UTC().Format(time.RFC3339),
		Samples: samples,
		Current: make([][3]float64, len(f.Current)),
		Markers: make([]markerView, len(f.Markers)),
	}
	for i, p := range f.Current {
		v.Current[i] = scene.Vec3(p)
	}
	if trails {
		v.Trails = make([][][3]float64, len(f.Trails))
		for i, tr := range f.Trails {
			v.Trails[i] = make([][3]float64, len(tr))
			for k, p := range tr {
				v.Trails[i][k] = scene.Vec3(p)
			}
		}
	}
	firstNew := len(f.Markers) - f.Added
	for k, m := range f.Markers {
		v.Markers[k] = markerView{
			T:        m.Event.T,
			I:        m.Event.I,
			J:        m.Event.J,
			Position: scene.Vec3(m.Position),
			New:      k >= firstNew,
		}
	}
	return v
}

// GET /api/v1/scene/frames/{index}?trails=true
func frameHandler(store *scene.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := current(w, store)
		if !ok {
			return
		}

		k, err := strconv.Atoi(r.PathValue("index"))
		if err != nil {
			httputil.WriteError(w, http.StatusBadRequest, "frame index must be an integer")
			return
		}
		trails := false
		if v := r.URL.Query().Get("trails"); v != "" {
			trails, err = strconv.ParseBool(v)
			if err != nil {
				httputil.WriteError(w, http.StatusBadRequest, "invalid trails parameter, must be true or false")
				return
			}
		}

		f, ok := render.NewPlayer(sc, false).Seek(k)
		if !ok {
			httputil.WriteJSON(w, http.StatusNotFound, map[string]any{
				"error":   "frame index out of range",
				"samples": sc.Samples(),
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, buildFrameView(f, sc.Samples(), trails))
	}
}
