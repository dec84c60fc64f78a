package timezone

import (
	"os"
	"time"
)

var Location *time.Location

func init() {
	name := os.Getenv("RELAY_TIMEZONE")
	if name == "" {
		Location = time.UTC
		return
	}
	var err error
	Location, err = time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
}

// force time into the panel's timezone, the host machine can end up
// anywhere and the data endpoint interprets window bounds in its own
// local day, not the server's
func Now() time.Time {
	return time.Now().In(Location)
}
