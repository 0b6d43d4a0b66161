package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"gtorrent/config"
	"gtorrent/db/models"
	"gtorrent/internal/event"
	"gtorrent/internal/piece"
	"gtorrent/internal/session"
	"gtorrent/torrent"
)

// startDownloadFromPeers spawns one session per discovered peer
// (capped by cfg.MaxPeersPerTorrent), drives them against a shared
// piece queue and completion monitor, and reassembles verified pieces
// into the torrent's final file layout as they complete.
func startDownloadFromPeers(tor *torrent.Torrent, peers map[string]*torrent.Peer, downloadPath string, dlModel *models.Download, cfg *config.AppConfig) error {
	if err := createEmptyFiles(tor, downloadPath); err != nil {
		return fmt.Errorf("failed to create files: %w", err)
	}

	totalPieces := tor.PieceCount()
	if totalPieces == 0 {
		return fmt.Errorf("no pieces found in torrent")
	}

	pieces := make([]*piece.Piece, totalPieces)
	for i := 0; i < totalPieces; i++ {
		digest, err := tor.PieceDigest(i)
		if err != nil {
			return fmt.Errorf("torrent metadata: %w", err)
		}
		pieces[i] = piece.New(uint32(i), uint32(tor.PieceLengthAt(i)), digest)
	}

	queue := piece.NewQueue(pieces)
	monitor := piece.NewMonitor(totalPieces)
	sink := event.NewChannelSink(totalPieces*2 + len(peers))

	var selfPeerID [20]byte
	copy(selfPeerID[:], "-GT0001-000000000000")

	ref := &session.TorrentRef{
		InfoHash:    tor.InfoHash,
		Name:        tor.Name,
		PieceCount:  totalPieces,
		LocalPeerID: selfPeerID,
		DownloadDir: filepath.Join(downloadPath, ".pieces"),
	}

	log.Info().Msgf("Starting download of %d pieces with %d peers", totalPieces, len(peers))

	maxPeers := cfg.MaxPeersPerTorrent
	if maxPeers <= 0 || maxPeers > len(peers) {
		maxPeers = len(peers)
	}

	var wg sync.WaitGroup
	started := 0
	for _, p := range peers {
		if started >= maxPeers {
			break
		}
		started++

		remote := session.Remote{Host: p.IP, Port: int(p.Port)}
		wg.Add(1)
		go func(remote session.Remote) {
			defer wg.Done()
			s := session.New(remote, ref, queue, monitor, sink, log.Logger)
			s.SetTimeouts(cfg.PeerDialTimeout, cfg.PeerReadTimeout)
			s.SetBadHashDropThreshold(cfg.BadHashDropThreshold)
			s.Run()
		}(remote)
	}

	go func() {
		wg.Wait()
		sink.Close()
	}()

	progress := &downloadProgress{
		tor:          tor,
		downloadPath: downloadPath,
		dlModel:      dlModel,
		monitor:      monitor,
		totalPieces:  totalPieces,
	}
	progress.consume(sink)

	if !monitor.IsComplete() {
		return fmt.Errorf("download incomplete - some pieces could not be downloaded")
	}

	dlModel.Status = models.Complete
	dlModel.Progress = 100
	dlModel.CompletedAt = time.Now().Unix()
	mainDB.UpdateDownload(dlModel)

	log.Info().Msg("Download completed successfully")
	return nil
}

// downloadProgress is the single consumer of the shared event stream:
// it persists completed pieces into the torrent's real file layout
// and mirrors peer/download state into the database.
type downloadProgress struct {
	tor          *torrent.Torrent
	downloadPath string
	dlModel      *models.Download
	monitor      *piece.Monitor
	totalPieces  int
	completed    int
}

func (dp *downloadProgress) consume(sink *event.ChannelSink) {
	for e := range sink.Events() {
		switch e.Kind {
		case event.NewConnection:
			log.Info().Str("peer", e.Peer).Str("session", e.SessionID).Msg("connected to peer")

		case event.OurStatus:
			dp.reportStatus(e)

		case event.NewDownloadedPiece:
			dp.reportDownloadedPiece(e)

		case event.ConnectionDropped:
			log.Debug().Str("peer", e.Peer).Str("session", e.SessionID).Msg("peer connection dropped")
		}
	}
}

func (dp *downloadProgress) reportStatus(e event.Event) {
	ip, port, err := splitHostPort(e.Peer)
	if err != nil {
		return
	}
	choked := !strings.HasPrefix(e.Status, "unchoked")
	interested := !strings.Contains(e.Status, "not interested")
	if err := mainDB.UpdatePeerStatus(dp.dlModel.ID, ip, port, choked, interested, e.Status); err != nil {
		log.Debug().Err(err).Str("peer", e.Peer).Msg("failed to record peer status")
	}
}

func (dp *downloadProgress) reportDownloadedPiece(e event.Event) {
	if e.Piece == nil {
		return
	}
	if err := writePiece(dp.tor, int(e.Piece.Index), e.Piece.Blocks, dp.downloadPath); err != nil {
		log.Error().Err(err).Uint32("piece", e.Piece.Index).Msg("failed to write piece to final layout")
		return
	}

	dp.monitor.MarkPieceDone(e.Piece.Index)

	if err := mainDB.MarkPieceDownloaded(dp.dlModel.ID, int(e.Piece.Index)); err != nil {
		log.Debug().Err(err).Uint32("piece", e.Piece.Index).Msg("failed to record piece in database")
	}
	if ip, port, err := splitHostPort(e.Peer); err == nil {
		_ = mainDB.AddPeerBytesDownloaded(dp.dlModel.ID, ip, port, int64(len(e.Piece.Blocks)))
	}

	dp.completed++
	dp.dlModel.Progress = dp.completed * 100 / dp.totalPieces
	dp.dlModel.DownloadedSize += int64(len(e.Piece.Blocks))
	mainDB.UpdateDownload(dp.dlModel)

	log.Info().Msgf("Download progress: %d/%d pieces", dp.completed, dp.totalPieces)

	if dp.completed == dp.totalPieces {
		dp.monitor.SetComplete()
	}
}

func splitHostPort(addr string) (string, uint16, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, err
	}
	return host, uint16(port), nil
}

// createEmptyFiles creates empty files with the correct sizes as specified in the torrent.
// This pre-allocates the space needed for the download.
func createEmptyFiles(tor *torrent.Torrent, downloadPath string) error {
	for _, file := range tor.FileList {
		filePath := filepath.Join(downloadPath, file.Path)

		// Create directory structure if needed
		err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm)
		if err != nil {
			return err
		}

		// Create empty file with correct size
		f, err := os.Create(filePath)
		if err != nil {
			return err
		}

		// Pre-allocate space
		err = f.Truncate(file.Length)
		f.Close() // Close file regardless of error
		if err != nil {
			return err
		}
	}
	return nil
}

// writePiece writes a downloaded piece to the correct position in the file(s).
// A single piece may span multiple files in a multi-file torrent.
func writePiece(tor *torrent.Torrent, pieceIndex int, pieceData []byte, downloadPath string) error {
	pieceOffset := int64(pieceIndex) * tor.PieceLength
	pieceLength := int64(len(pieceData))

	// Find the file(s) this piece belongs to
	var currentOffset int64 = 0
	for _, file := range tor.FileList {
		filePath := filepath.Join(downloadPath, file.Path)

		fileStart := currentOffset
		fileEnd := currentOffset + file.Length

		// Check if this piece overlaps with the current file
		if pieceOffset < fileEnd && pieceOffset+pieceLength > fileStart {
			// Calculate the overlap
			pieceStartInFile := int64(0)
			if pieceOffset > fileStart {
				pieceStartInFile = pieceOffset - fileStart
			}

			fileStartInPiece := int64(0)
			if fileStart > pieceOffset {
				fileStartInPiece = fileStart - pieceOffset
			}

			bytesToWrite := pieceLength - fileStartInPiece
			if fileEnd < pieceOffset+pieceLength {
				bytesToWrite = fileEnd - (pieceOffset + fileStartInPiece)
			}

			// Open the file for writing
			f, err := os.OpenFile(filePath, os.O_WRONLY, 0644)
			if err != nil {
				return err
			}

			// Seek to the correct position
			_, err = f.Seek(pieceStartInFile, io.SeekStart)
			if err != nil {
				f.Close()
				return err
			}

			// Write the piece data
			_, err = f.Write(pieceData[fileStartInPiece : fileStartInPiece+bytesToWrite])
			f.Close() // Close file regardless of error
			if err != nil {
				return err
			}
		}

		currentOffset += file.Length
	}

	return nil
}
