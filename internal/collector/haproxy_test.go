package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const haproxyStats = `# pxname,svname,qcur,qmax,scur,smax,slim,stot,bin,bout,dreq,dresp,ereq,econ,eresp,wretr,wredis,status,weight,act,bck,chkfail,chkdown,lastchg,downtime,qlimit,pid,iid,sid,throttle,lbtot,tracked,type,rate,rate_lim,rate_max,check_status,check_code,check_duration,hrsp_1xx,hrsp_2xx,hrsp_3xx,hrsp_4xx,hrsp_5xx,hrsp_other,hanafail,req_rate,req_rate_max,req_tot,cli_abrt,srv_abrt,comp_in,comp_out,comp_byp,comp_rsp,lastsess,last_chk,last_agt,qtime,ctime,rtime,ttime,
stats,FRONTEND,,,1,2,262124,10,1000,2000,0,0,0,,,,,OPEN,,,,,,,,,1,2,0,,,,0,1,0,2,,,,0,9,0,0,0,0,,1,2,10,,,0,0,0,0,,,,,,,,
web_backend,web1,0,0,3,10,,120,5000,10000,,0,,0,0,0,0,UP,1,1,0,0,0,100,0,,1,3,1,,120,,2,4,,8,L4OK,,1,0,118,0,2,0,0,,,,,0,0,,,,,1,,,0,1,12,15,
web_backend,web2,0,0,0,5,,80,4000,8000,,0,,0,0,0,0,DOWN,1,1,0,3,1,50,40,,1,3,2,,80,,2,0,,5,L4CON,,0,0,80,0,0,0,0,,,,,0,0,,,,,30,,,,,,,
web_backend,BACKEND,0,0,3,10,26212,200,9000,18000,0,0,,0,0,0,0,UP,2,2,0,,0,100,0,,1,3,0,,200,,1,4,,8,,,,0,198,0,2,0,0,,,,,0,0,0,0,0,0,1,,,0,1,12,15,
`

func TestHAProxyCollector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(haproxyStats))
	}))
	defer srv.Close()

	samples, err := NewHAProxyCollector(srv.URL+"/stats;csv", nil).Collect(context.Background())
	require.NoError(t, err)

	got := sampleMap(samples)
	web1 := ",server=web_backend/web1"
	web2 := ",server=web_backend/web2"
	assert.Equal(t, 12.0, got["haproxy_response_time_ms"+web1])
	assert.Equal(t, 4.0, got["haproxy_session_rate"+web1])
	assert.Equal(t, 0.0, got["haproxy_queue_time_ms"+web1])
	assert.Equal(t, 1.0, got["haproxy_connect_time_ms"+web1])
	assert.Equal(t, 3.0, got["haproxy_current_sessions"+web1])
	assert.Equal(t, 1.0, got["haproxy_server_up"+web1])

	assert.Equal(t, 0.0, got["haproxy_server_up"+web2])
	assert.NotContains(t, got, "haproxy_response_time_ms"+web2, "empty cells are dropped")

	for key := range got {
		assert.NotContains(t, key, "BACKEND")
		assert.NotContains(t, key, "FRONTEND")
	}
}

func TestHAProxyCollector_Errors(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewHAProxyCollector(srv.URL, nil).Collect(context.Background())
		assert.Equal(t, KindUnreachable, KindOf(err))
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewHAProxyCollector(url, nil).Collect(context.Background())
		assert.Equal(t, KindUnreachable, KindOf(err))
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := NewHAProxyCollector("", nil).Collect(context.Background())
		assert.Equal(t, KindNotConfigured, KindOf(err))
	})

	t.Run("bad header", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>hello</html>\n"))
		}))
		defer srv.Close()

		_, err := NewHAProxyCollector(srv.URL, nil).Collect(context.Background())
		assert.Equal(t, KindParse, KindOf(err))
	})
}
