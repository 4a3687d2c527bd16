package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mybank/idalloc"
)

// maxBatch is the largest count accepted by GET /api/v1/ids.
const maxBatch = 1000

// IDView is the JSON form of a minted or decoded ID.
type IDView struct {
	ID     idalloc.ID    `json:"id"`
	Hex    string        `json:"hex"`
	Base62 string        `json:"base62"`
	Parts  idalloc.Parts `json:"parts"`
	Time   time.Time     `json:"time"`
}

func (s *Server) view(id idalloc.ID) IDView {
	return IDView{
		ID:     id,
		Hex:    id.Hex(),
		Base62: id.Base62(),
		Parts:  s.gen.Decode(id),
		Time:   s.gen.Time(id).UTC(),
	}
}

// handleMintIDs mints one ID, or ?count=n IDs in a single batch.
func (s *Server) handleMintIDs(c *gin.Context) {
	raw, batch := c.GetQuery("count")
	if !batch {
		id, err := s.gen.NextIDContext(c.Request.Context())
		if err != nil {
			s.writeError(c, err)
			return
		}
		OK(c, "ok", s.view(idalloc.ID(id)))
		return
	}

	count, err := strconv.Atoi(raw)
	if err != nil || count < 1 || count > maxBatch {
		Fail(c, http.StatusBadRequest, fmt.Sprintf("count must be an integer between 1 and %d", maxBatch))
		return
	}

	ids, err := s.gen.GenerateBatch(c.Request.Context(), count)
	if err != nil {
		s.writeError(c, err)
		return
	}
	views := make([]IDView, len(ids))
	for i, id := range ids {
		views[i] = s.view(id)
	}
	OK(c, "ok", views)
}

// handleDecodeID decodes a decimal or base62 ID. Strings that parse as
// decimal are always treated as decimal.
func (s *Server) handleDecodeID(c *gin.Context) {
	raw := c.Param("id")

	id, err := idalloc.ParseString(raw)
	if err != nil {
		id, err = idalloc.ParseBase62(raw)
	}
	if err != nil {
		Fail(c, http.StatusBadRequest, "id must be a decimal or base62 identifier")
		return
	}
	OK(c, "ok", s.view(id))
}
