package internal

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomshare/internal/filestore"
	"roomshare/internal/storage"
	"roomshare/internal/wire"
)

type recordingJournal struct {
	mu       sync.Mutex
	activity []storage.Activity
}

func (j *recordingJournal) RecordActivity(_ context.Context, a storage.Activity) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.activity = append(j.activity, a)
	return int64(len(j.activity)), nil
}

func (j *recordingJournal) actions() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.activity))
	for _, a := range j.activity {
		out = append(out, a.Action)
	}
	return out
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func startFileServer(t *testing.T, mutate func(*FileServerOptions)) (*FileServer, string) {
	t.Helper()
	files, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	opts := FileServerOptions{Files: files, Logger: quietLogger()}
	if mutate != nil {
		mutate(&opts)
	}
	server := NewFileServer(opts)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("file server did not stop")
		}
	})
	return server, listener.Addr().String()
}

func dialFileServer(t *testing.T, addr string) *FileClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := DialFileClient(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func requireReplyError(t *testing.T, err error, message string) {
	t.Helper()
	var replyErr *ReplyError
	require.ErrorAs(t, err, &replyErr)
	assert.Equal(t, message, replyErr.Message)
}

func writeRawFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	_, err := conn.Write(append(header, payload...))
	require.NoError(t, err)
}

func readRawReply(t *testing.T, reader *bufio.Reader) wire.Reply {
	t.Helper()
	payload, err := wire.ReadFrame(reader, 0)
	require.NoError(t, err)
	var reply wire.Reply
	require.NoError(t, wire.Decode(payload, &reply))
	return reply
}

func TestDesignRoomScenario(t *testing.T) {
	_, addr := startFileServer(t, nil)
	client := dialFileServer(t, addr)

	require.NoError(t, client.SetUsername("alice"))
	require.NoError(t, client.CreateRoom("design"))

	files, err := client.JoinRoom("design")
	require.NoError(t, err)
	assert.NotNil(t, files, "room_files must be present even when empty")
	assert.Empty(t, files)

	require.NoError(t, client.Upload("notes.txt", []byte("hello")))

	listed, err := client.ListFiles()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "notes.txt", listed[0].Name)
	assert.Equal(t, int64(5), listed[0].Size)
	assert.Equal(t, "alice", listed[0].UploadedBy)
	assert.NotEmpty(t, listed[0].UploadedAt)

	data, err := client.Download("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	rooms, err := client.ListRooms()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{DefaultRoom, "design"}, rooms)
}

func TestJoinRoomReplyCarriesEmptyFileList(t *testing.T) {
	_, addr := startFileServer(t, nil)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteFrame(conn, wire.Request{Type: wire.TypeJoinRoom, Room: DefaultRoom}))
	payload, err := wire.ReadFrame(bufio.NewReader(conn), 0)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"room_files":[]`)
	assert.Contains(t, string(payload), `"status":"success"`)
}

func TestUploadDownloadRoundTripBinary(t *testing.T) {
	_, addr := startFileServer(t, nil)
	client := dialFileServer(t, addr)
	_, err := client.JoinRoom(DefaultRoom)
	require.NoError(t, err)

	payload := make([]byte, 256*1024)
	for i := range payload {
		payload[i] = byte(i * 31)
	}
	require.NoError(t, client.Upload("blob.png", payload))

	got, err := client.Download("blob.png")
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestUploadRejectsDisallowedType(t *testing.T) {
	_, addr := startFileServer(t, nil)
	client := dialFileServer(t, addr)
	_, err := client.JoinRoom(DefaultRoom)
	require.NoError(t, err)

	requireReplyError(t, client.Upload("a.exe", []byte("abc")), "File type .exe not allowed")
}

func TestUploadRejectsTraversalBeforeStorage(t *testing.T) {
	root := t.TempDir()
	server, addr := startFileServer(t, func(opts *FileServerOptions) {
		files, err := filestore.New(root)
		require.NoError(t, err)
		opts.Files = files
	})
	client := dialFileServer(t, addr)
	_, err := client.JoinRoom(DefaultRoom)
	require.NoError(t, err)

	for _, name := range []string{"../escape.txt", "a/b.txt", `a\b.txt`, "..txt"} {
		err := client.Upload(name, []byte("abc"))
		var replyErr *ReplyError
		require.ErrorAs(t, err, &replyErr, name)
		assert.Contains(t, replyErr.Message, "invalid character", name)
	}

	infos, err := server.Hub().Files(DefaultRoom)
	require.NoError(t, err)
	assert.Empty(t, infos)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing may reach storage")
	_, err = os.Stat(filepath.Join(filepath.Dir(root), "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestUploadSizeMismatchLeavesRoomUnchanged(t *testing.T) {
	_, addr := startFileServer(t, nil)
	client := dialFileServer(t, addr)
	_, err := client.JoinRoom(DefaultRoom)
	require.NoError(t, err)
	require.NoError(t, client.Upload("notes.txt", []byte("hello")))

	data := base64.StdEncoding.EncodeToString([]byte("HELLO"))
	_, err = client.Do(wire.Request{Type: wire.TypeUploadFile, Filename: "notes.txt", Size: wire.Size(10), Data: &data})
	requireReplyError(t, err, "File size mismatch")

	listed, err := client.ListFiles()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, int64(5), listed[0].Size)
	got, err := client.Download("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestUploadValidationOrder(t *testing.T) {
	_, addr := startFileServer(t, func(opts *FileServerOptions) { opts.MaxFileSize = 16 })
	client := dialFileServer(t, addr)
	_, err := client.JoinRoom(DefaultRoom)
	require.NoError(t, err)

	size := wire.Size
	data := func(s string) *string { return &s }

	cases := []struct {
		name string
		req  wire.Request
		want string
	}{
		{"missing data", wire.Request{Filename: "a.txt", Size: size(3)}, "Missing file information"},
		{"empty data", wire.Request{Filename: "a.txt", Size: size(0), Data: data("")}, "Missing file information"},
		{"missing size", wire.Request{Filename: "a.txt", Data: data("YWJj")}, "Missing file information"},
		{"oversize beats bad name", wire.Request{Filename: "a.exe", Size: size(32), Data: data("YWJj")}, "File too large (max 16 B)"},
		{"bad name beats bad base64", wire.Request{Filename: "a.exe", Size: size(3), Data: data("!!!")}, "File type .exe not allowed"},
		{"bad base64", wire.Request{Filename: "a.txt", Size: size(3), Data: data("!!!")}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.Type = wire.TypeUploadFile
			_, err := client.Do(tc.req)
			var replyErr *ReplyError
			require.ErrorAs(t, err, &replyErr)
			if tc.want == "" {
				assert.True(t, strings.HasPrefix(replyErr.Message, "Invalid file data"), replyErr.Message)
				return
			}
			assert.Equal(t, tc.want, replyErr.Message)
		})
	}
}

func TestJoinMissingRoomKeepsSessionState(t *testing.T) {
	server, addr := startFileServer(t, nil)
	client := dialFileServer(t, addr)

	_, err := client.JoinRoom("nowhere")
	requireReplyError(t, err, "Room not found")
	_, err = client.ListFiles()
	requireReplyError(t, err, "Not in a room")

	_, err = client.JoinRoom(DefaultRoom)
	require.NoError(t, err)
	require.Len(t, server.Hub().Members(DefaultRoom), 1)

	_, err = client.JoinRoom("nowhere")
	requireReplyError(t, err, "Room not found")
	assert.Len(t, server.Hub().Members(DefaultRoom), 1)
	_, err = client.ListFiles()
	assert.NoError(t, err, "session must still be in its previous room")
}

func TestJoinMovesMembership(t *testing.T) {
	server, addr := startFileServer(t, nil)
	client := dialFileServer(t, addr)
	require.NoError(t, client.CreateRoom("design"))

	_, err := client.JoinRoom(DefaultRoom)
	require.NoError(t, err)
	_, err = client.JoinRoom("design")
	require.NoError(t, err)

	assert.Empty(t, server.Hub().Members(DefaultRoom))
	assert.Len(t, server.Hub().Members("design"), 1)
}

func TestFileOperationsRequireRoom(t *testing.T) {
	_, addr := startFileServer(t, nil)
	client := dialFileServer(t, addr)

	_, err := client.ListFiles()
	requireReplyError(t, err, "Not in a room")
	requireReplyError(t, client.Upload("a.txt", []byte("abc")), "Not in a room")
	_, err = client.Download("a.txt")
	requireReplyError(t, err, "Not in a room")
}

func TestRequestValidationMessages(t *testing.T) {
	_, addr := startFileServer(t, nil)
	client := dialFileServer(t, addr)

	requireReplyError(t, client.SetUsername(""), "Invalid username")
	requireReplyError(t, client.CreateRoom(""), "Room already exists or invalid name")
	requireReplyError(t, client.CreateRoom(DefaultRoom), "Room already exists or invalid name")

	_, err := client.Do(wire.Request{Type: "shout"})
	requireReplyError(t, err, "Unknown message type")

	_, err = client.JoinRoom(DefaultRoom)
	require.NoError(t, err)
	_, err = client.Download("ghost.txt")
	requireReplyError(t, err, "File not found")
	_, err = client.Do(wire.Request{Type: wire.TypeDownloadFile})
	requireReplyError(t, err, "Filename required")
}

func TestMalformedJSONKeepsSessionAlive(t *testing.T) {
	_, addr := startFileServer(t, nil)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	writeRawFrame(t, conn, []byte(`{"type": "list_rooms"`))
	reply := readRawReply(t, reader)
	assert.Equal(t, wire.StatusError, reply.Status)
	assert.Equal(t, "Invalid JSON format", reply.Message)

	require.NoError(t, wire.WriteFrame(conn, wire.Request{Type: wire.TypeListRooms}))
	reply = readRawReply(t, reader)
	assert.True(t, reply.OK())
	assert.Contains(t, reply.Rooms, DefaultRoom)
}

func TestOversizedFrameIsDrained(t *testing.T) {
	_, addr := startFileServer(t, func(opts *FileServerOptions) { opts.MaxFileSize = 16 })
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	limit := wire.MaxFrameFor(16)
	writeRawFrame(t, conn, make([]byte, limit+1024))
	reply := readRawReply(t, reader)
	assert.Equal(t, wire.StatusError, reply.Status)

	require.NoError(t, wire.WriteFrame(conn, wire.Request{Type: wire.TypeListRooms}))
	reply = readRawReply(t, reader)
	assert.True(t, reply.OK())
}

func TestZeroLengthFrameEndsSession(t *testing.T) {
	server, addr := startFileServer(t, nil)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0, 0, 0, 0})
	require.NoError(t, err)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	require.Eventually(t, func() bool { return server.ActiveSessions() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectRemovesMembership(t *testing.T) {
	server, addr := startFileServer(t, nil)
	client := dialFileServer(t, addr)
	_, err := client.JoinRoom(DefaultRoom)
	require.NoError(t, err)
	require.Len(t, server.Hub().Members(DefaultRoom), 1)

	require.NoError(t, client.Close())
	require.Eventually(t, func() bool {
		return len(server.Hub().Members(DefaultRoom)) == 0 && server.ActiveSessions() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStalledPeerHoldsSessionWithoutIdleTimeout(t *testing.T) {
	server, addr := startFileServer(t, nil)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// half a header, then silence
	_, err = conn.Write([]byte{0, 0})
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, server.ActiveSessions())
}

func TestIdleTimeoutClosesStalledPeer(t *testing.T) {
	server, addr := startFileServer(t, func(opts *FileServerOptions) { opts.IdleTimeout = 100 * time.Millisecond })
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0, 0})
	require.NoError(t, err)
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	require.Eventually(t, func() bool { return server.ActiveSessions() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownForceClosesSessions(t *testing.T) {
	files, err := filestore.New(t.TempDir())
	require.NoError(t, err)
	server := NewFileServer(FileServerOptions{Files: files, Logger: quietLogger()})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	client := dialFileServer(t, listener.Addr().String())
	_, err = client.ListRooms()
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	_, err = client.ListRooms()
	assert.Error(t, err)
	assert.Zero(t, server.ActiveSessions())
}

func TestConcurrentSessionsUploadIndependently(t *testing.T) {
	server, addr := startFileServer(t, nil)
	const sessions = 8

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		client := dialFileServer(t, addr)
		wg.Add(1)
		go func(i int, client *FileClient) {
			defer wg.Done()
			assert.NoError(t, client.SetUsername(fmt.Sprintf("user%d", i)))
			_, err := client.JoinRoom(DefaultRoom)
			assert.NoError(t, err)
			assert.NoError(t, client.Upload(fmt.Sprintf("file%d.txt", i), []byte(strings.Repeat("x", i+1))))
		}(i, client)
	}
	wg.Wait()

	infos, err := server.Hub().Files(DefaultRoom)
	require.NoError(t, err)
	assert.Len(t, infos, sessions)
	assert.Len(t, server.Hub().Members(DefaultRoom), sessions)
}

func TestReuploadLastWriteWins(t *testing.T) {
	_, addr := startFileServer(t, nil)
	alice := dialFileServer(t, addr)
	bob := dialFileServer(t, addr)
	require.NoError(t, alice.SetUsername("alice"))
	require.NoError(t, bob.SetUsername("bob"))
	for _, c := range []*FileClient{alice, bob} {
		_, err := c.JoinRoom(DefaultRoom)
		require.NoError(t, err)
	}

	require.NoError(t, alice.Upload("plan.txt", []byte("v1")))
	require.NoError(t, bob.Upload("plan.txt", []byte("version two")))

	listed, err := alice.ListFiles()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "bob", listed[0].UploadedBy)
	assert.Equal(t, int64(len("version two")), listed[0].Size)
}

func TestSuccessfulActionsReachJournal(t *testing.T) {
	journal := &recordingJournal{}
	_, addr := startFileServer(t, func(opts *FileServerOptions) { opts.Journal = journal })
	client := dialFileServer(t, addr)

	require.NoError(t, client.SetUsername("carol"))
	require.NoError(t, client.CreateRoom("ops"))
	_, err := client.JoinRoom("ops")
	require.NoError(t, err)
	require.NoError(t, client.Upload("run.py", []byte("echo hi")))
	_, err = client.Download("run.py")
	require.NoError(t, err)
	requireReplyError(t, client.Upload("run.exe", []byte("x")), "File type .exe not allowed")

	assert.Equal(t, []string{
		storage.ActionCreateRoom,
		storage.ActionJoinRoom,
		storage.ActionUpload,
		storage.ActionDownload,
	}, journal.actions())

	journal.mu.Lock()
	upload := journal.activity[2]
	journal.mu.Unlock()
	assert.Equal(t, "carol", upload.Username)
	assert.Equal(t, "ops", upload.Room)
	assert.Equal(t, int64(7), upload.Size)
	assert.Len(t, upload.SHA256, 64)
}

func TestSessionStateProgression(t *testing.T) {
	client, peer := net.Pipe()
	defer client.Close()
	defer peer.Close()

	sess := newSession(client)
	assert.Equal(t, StateConnected, sess.State())
	assert.Equal(t, sess.id, sess.displayName())

	sess.username = "alice"
	assert.Equal(t, StateNamed, sess.State())
	assert.Equal(t, "alice", sess.displayName())

	sess.room = DefaultRoom
	assert.Equal(t, StateInRoom, sess.State())
	assert.Equal(t, "in_room", sess.State().String())
}

func TestRoomsWithCollidingDirectoryNamesStayApart(t *testing.T) {
	server, addr := startFileServer(t, nil)
	alice := dialFileServer(t, addr)
	mallory := dialFileServer(t, addr)

	require.NoError(t, alice.CreateRoom("team/alpha"))
	_, err := alice.JoinRoom("team/alpha")
	require.NoError(t, err)
	require.NoError(t, alice.Upload("plan.txt", []byte("alice's plan")))

	lookalike := filepath.Base(server.files.RoomDir("team/alpha"))
	require.NoError(t, mallory.CreateRoom(lookalike))
	_, err = mallory.JoinRoom(lookalike)
	require.NoError(t, err)
	require.NoError(t, mallory.Upload("plan.txt", []byte("x")))

	got, err := alice.Download("plan.txt")
	require.NoError(t, err)
	assert.Equal(t, "alice's plan", string(got))
}

func TestUploadHoldsFileLockUntilRegistered(t *testing.T) {
	server, addr := startFileServer(t, nil)
	client := dialFileServer(t, addr)
	_, err := client.JoinRoom(DefaultRoom)
	require.NoError(t, err)

	unlock := server.files.Lock(DefaultRoom, "plan.txt")
	done := make(chan error, 1)
	go func() { done <- client.Upload("plan.txt", []byte("hello")) }()

	select {
	case err := <-done:
		t.Fatalf("upload finished while the file was locked: %v", err)
	case <-time.After(150 * time.Millisecond):
	}
	_, err = server.Hub().File(DefaultRoom, "plan.txt")
	assert.ErrorIs(t, err, ErrFileNotFound)

	unlock()
	require.NoError(t, <-done)
	entry, err := server.Hub().File(DefaultRoom, "plan.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), entry.SizeBytes)
}

func TestSameNameUploadsKeepRegistryAndDiskInStep(t *testing.T) {
	server, addr := startFileServer(t, nil)
	seed := dialFileServer(t, addr)
	_, err := seed.JoinRoom(DefaultRoom)
	require.NoError(t, err)
	require.NoError(t, seed.Upload("x.txt", []byte("0")))

	const writers = 4
	const rounds = 25
	var wg sync.WaitGroup
	for w := 1; w <= writers; w++ {
		client := dialFileServer(t, addr)
		_, err := client.JoinRoom(DefaultRoom)
		require.NoError(t, err)
		wg.Add(1)
		go func(w int, client *FileClient) {
			defer wg.Done()
			body := []byte(strings.Repeat("x", w))
			for range rounds {
				assert.NoError(t, client.Upload("x.txt", body))
			}
		}(w, client)
	}
	reader := dialFileServer(t, addr)
	_, err = reader.JoinRoom(DefaultRoom)
	require.NoError(t, err)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range rounds {
			// Download rejects bytes that disagree with the recorded size
			_, err := reader.Download("x.txt")
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	entry, err := server.Hub().File(DefaultRoom, "x.txt")
	require.NoError(t, err)
	stored, err := server.files.Get(DefaultRoom, "x.txt")
	require.NoError(t, err)
	assert.Equal(t, entry.SizeBytes, int64(len(stored)))
}

func TestUploadAcceptsWholeFloatSize(t *testing.T) {
	_, addr := startFileServer(t, nil)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	reader := bufio.NewReader(conn)

	writeRawFrame(t, conn, []byte(`{"type":"join_room","room":"general"}`))
	require.True(t, readRawReply(t, reader).OK())

	writeRawFrame(t, conn, []byte(`{"type":"upload_file","filename":"a.txt","size":5.0,"data":"aGVsbG8="}`))
	reply := readRawReply(t, reader)
	assert.True(t, reply.OK(), reply.Message)

	writeRawFrame(t, conn, []byte(`{"type":"upload_file","filename":"b.txt","size":5.5,"data":"aGVsbG8="}`))
	reply = readRawReply(t, reader)
	assert.Equal(t, "File size mismatch", reply.Message)

	writeRawFrame(t, conn, []byte(`{"type":"list_files"}`))
	reply = readRawReply(t, reader)
	require.Len(t, reply.Files, 1)
	assert.Equal(t, "a.txt", reply.Files[0].Name)
	assert.Equal(t, int64(5), reply.Files[0].Size)
}
