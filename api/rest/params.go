package rest

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/friendhub/model"
	"github.com/kasuganosora/friendhub/user"
)

// bindPage reads ?page= and ?limit=. Absent values take the defaults.
func bindPage(c *gin.Context) (model.Page, error) {
	page := model.Page{Number: 1, Limit: model.DefaultPageLimit}
	if v, ok := c.GetQuery("page"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return page, invalid("page must be a positive integer")
		}
		page.Number = n
	}
	if v, ok := c.GetQuery("limit"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > model.MaxPageLimit {
			return page, invalid("limit must be an integer between 1 and %d", model.MaxPageLimit)
		}
		page.Limit = n
	}
	return page, nil
}

// bindFilter reads the optional ?firstName=, ?lastName= and ?age= filters.
// Empty name values are treated as absent.
func bindFilter(c *gin.Context) (user.Filter, error) {
	var f user.Filter
	if v := c.Query("firstName"); v != "" {
		f.FirstName = &v
	}
	if v := c.Query("lastName"); v != "" {
		f.LastName = &v
	}
	if v, ok := c.GetQuery("age"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, invalid("age must be a number")
		}
		f.Age = &n
	}
	return f, nil
}

// pathID parses the :id route parameter as a positive account ID.
func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid("invalid id")
	}
	return id, nil
}
